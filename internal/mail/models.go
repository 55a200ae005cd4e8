package mail

import (
	"strings"
	"time"
)

// Kind identifies the type of mailbox entry.
type Kind string

const (
	KindMessage     Kind = "message"
	KindTask        Kind = "task"
	KindAppointment Kind = "appointment"
)

// Item is the common view over every supported record kind.
type Item interface {
	Kind() Kind
	EntryID() string
	// EffectiveTime is the timestamp used to order items chronologically.
	// The zero time is returned when the item carries no usable timestamp.
	EffectiveTime() time.Time
	HasAttachments() bool
}

// Importance mirrors the client's three-level importance scale. The zero
// value is Normal; Low < Normal < High.
type Importance int

const (
	ImportanceLow    Importance = -1
	ImportanceNormal Importance = 0
	ImportanceHigh   Importance = 1
)

func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "Low"
	case ImportanceHigh:
		return "High"
	default:
		return "Normal"
	}
}

// FlagStatus is the follow-up flag state of a message.
type FlagStatus int

const (
	FlagNone FlagStatus = iota
	FlagComplete
	FlagFlagged
	FlagFollowUp
	FlagForward
	FlagReply
	FlagUnflagged
)

func (f FlagStatus) String() string {
	switch f {
	case FlagComplete:
		return "complete"
	case FlagFlagged:
		return "flagged"
	case FlagFollowUp:
		return "follow-up"
	case FlagForward:
		return "forward"
	case FlagReply:
		return "reply"
	case FlagUnflagged:
		return "unflagged"
	default:
		return "none"
	}
}

// Address represents an email address with optional name
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// String returns the formatted address
func (a Address) String() string {
	if a.Name != "" && a.Address != "" {
		return a.Name + " <" + a.Address + ">"
	}
	if a.Name != "" {
		return a.Name
	}
	return a.Address
}

// Message is the canonical, formatted mail record. It is built fresh on
// every fetch and never written back.
type Message struct {
	ID              string     `json:"id"`
	ConversationID  string     `json:"conversation_id,omitempty"`
	Subject         string     `json:"subject"`
	SenderName      string     `json:"sender"`
	SenderAddress   string     `json:"sender_email"`
	ReceivedAt      *time.Time `json:"received_time,omitempty"`
	SentAt          *time.Time `json:"sent_time,omitempty"`
	IsSent          bool       `json:"is_sent_item"`
	Recipients      []string   `json:"recipients"`
	Body            string     `json:"body"`
	AttachmentCount int        `json:"attachment_count"`
	Unread          bool       `json:"unread"`
	Importance      Importance `json:"importance"`
	Categories      string     `json:"categories,omitempty"`
	Flag            FlagStatus `json:"flag_status"`
}

func (m *Message) Kind() Kind { return KindMessage }

func (m *Message) EntryID() string { return m.ID }

// EffectiveTime prefers the sent time, then the received time.
func (m *Message) EffectiveTime() time.Time {
	if m.SentAt != nil {
		return *m.SentAt
	}
	if m.ReceivedAt != nil {
		return *m.ReceivedAt
	}
	return time.Time{}
}

func (m *Message) HasAttachments() bool { return m.AttachmentCount > 0 }

// Sender returns the sender as an Address.
func (m *Message) Sender() Address {
	return Address{Name: m.SenderName, Address: m.SenderAddress}
}

// FromAddress reports whether the message was sent by addr. Both sides are
// reduced to their bare address, so "Me <me@example.com>" matches
// "me@example.com"; the comparison is case-insensitive.
func (m *Message) FromAddress(addr string) bool {
	want := BareAddress(addr)
	if want == "" {
		return false
	}
	return strings.EqualFold(BareAddress(m.SenderAddress), want)
}

// Task is a to-do entry.
type Task struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Complete    bool       `json:"complete"`
	ReminderSet bool       `json:"reminder_set"`
	ReminderAt  *time.Time `json:"reminder_time,omitempty"`
}

func (t *Task) Kind() Kind { return KindTask }

func (t *Task) EntryID() string { return t.ID }

func (t *Task) EffectiveTime() time.Time {
	if t.DueDate != nil {
		return *t.DueDate
	}
	return time.Time{}
}

func (t *Task) HasAttachments() bool { return false }

// Appointment is a calendar entry.
type Appointment struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location"`
	AllDay   bool      `json:"all_day"`
}

func (a *Appointment) Kind() Kind { return KindAppointment }

func (a *Appointment) EntryID() string { return a.ID }

func (a *Appointment) EffectiveTime() time.Time { return a.Start }

func (a *Appointment) HasAttachments() bool { return false }

// TaskDraft holds the fields needed to create a task.
type TaskDraft struct {
	Subject    string
	DueDate    time.Time
	ReminderAt *time.Time
}
