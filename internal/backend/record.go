package backend

import (
	"fmt"
	"time"

	"github.com/deskmail/deskmail/internal/mail"
)

// Record is a raw entry handed out by a backend. Concrete records implement
// exactly one of MessageRecord, TaskRecord or AppointmentRecord.
type Record interface {
	Kind() mail.Kind
	EntryID() string
}

// MessageRecord exposes the fields of a mail item. Any accessor returning
// an error signals that the backend could not read that field.
type MessageRecord interface {
	Record
	ConversationID() (string, error)
	Subject() (string, error)
	Sender() (mail.Address, error)
	ReceivedAt() (time.Time, bool)
	SentAt() (time.Time, bool)
	ParentFolderID() (string, error)
	Recipients() ([]mail.Address, error)
	Body() (string, error)
	AttachmentNames() ([]string, error)
	Unread() (bool, error)
	Importance() (mail.Importance, error)
	Categories() (string, error)
	FlagStatus() (mail.FlagStatus, error)
}

// Threaded is implemented by message records that carry RFC 5322
// threading headers, so replies can reference them precisely.
type Threaded interface {
	MessageID() string
	References() []string
}

// TaskRecord is a to-do entry.
type TaskRecord interface {
	Record
	Task() mail.Task
}

// AppointmentRecord is a calendar entry.
type AppointmentRecord interface {
	Record
	Appointment() mail.Appointment
}

// Field names a MessageData accessor.
type Field string

const (
	FieldConversation Field = "conversation_id"
	FieldSubject      Field = "subject"
	FieldSender       Field = "sender"
	FieldFolder       Field = "parent_folder"
	FieldRecipients   Field = "recipients"
	FieldBody         Field = "body"
	FieldAttachments  Field = "attachments"
	FieldUnread       Field = "unread"
	FieldImportance   Field = "importance"
	FieldCategories   Field = "categories"
	FieldFlag         Field = "flag_status"
)

// MessageData is a MessageRecord backed by values that are already loaded.
// Entries in Broken make the matching accessor fail.
type MessageData struct {
	ID           string
	Conversation string
	SubjectText  string
	From         mail.Address
	Received     time.Time
	Sent         time.Time
	FolderID     string
	To           []mail.Address
	BodyText     string
	Attachments  []string
	IsUnread     bool
	Priority     mail.Importance
	CategoryTags string
	Flag         mail.FlagStatus
	Broken       map[Field]error
}

func (d *MessageData) fail(f Field) error {
	if err, ok := d.Broken[f]; ok {
		if err == nil {
			err = fmt.Errorf("field %s unavailable", f)
		}
		return err
	}
	return nil
}

func (d *MessageData) Kind() mail.Kind { return mail.KindMessage }

func (d *MessageData) EntryID() string { return d.ID }

func (d *MessageData) ConversationID() (string, error) {
	if err := d.fail(FieldConversation); err != nil {
		return "", err
	}
	return d.Conversation, nil
}

func (d *MessageData) Subject() (string, error) {
	if err := d.fail(FieldSubject); err != nil {
		return "", err
	}
	return d.SubjectText, nil
}

func (d *MessageData) Sender() (mail.Address, error) {
	if err := d.fail(FieldSender); err != nil {
		return mail.Address{}, err
	}
	return d.From, nil
}

func (d *MessageData) ReceivedAt() (time.Time, bool) { return d.Received, !d.Received.IsZero() }

func (d *MessageData) SentAt() (time.Time, bool) { return d.Sent, !d.Sent.IsZero() }

func (d *MessageData) ParentFolderID() (string, error) {
	if err := d.fail(FieldFolder); err != nil {
		return "", err
	}
	return d.FolderID, nil
}

func (d *MessageData) Recipients() ([]mail.Address, error) {
	if err := d.fail(FieldRecipients); err != nil {
		return nil, err
	}
	return d.To, nil
}

func (d *MessageData) Body() (string, error) {
	if err := d.fail(FieldBody); err != nil {
		return "", err
	}
	return d.BodyText, nil
}

func (d *MessageData) AttachmentNames() ([]string, error) {
	if err := d.fail(FieldAttachments); err != nil {
		return nil, err
	}
	return d.Attachments, nil
}

func (d *MessageData) Unread() (bool, error) {
	if err := d.fail(FieldUnread); err != nil {
		return false, err
	}
	return d.IsUnread, nil
}

func (d *MessageData) Importance() (mail.Importance, error) {
	if err := d.fail(FieldImportance); err != nil {
		return mail.ImportanceNormal, err
	}
	return d.Priority, nil
}

func (d *MessageData) Categories() (string, error) {
	if err := d.fail(FieldCategories); err != nil {
		return "", err
	}
	return d.CategoryTags, nil
}

func (d *MessageData) FlagStatus() (mail.FlagStatus, error) {
	if err := d.fail(FieldFlag); err != nil {
		return mail.FlagNone, err
	}
	return d.Flag, nil
}

// TaskData wraps a mail.Task as a TaskRecord.
type TaskData struct {
	Value mail.Task
}

func (t *TaskData) Kind() mail.Kind { return mail.KindTask }

func (t *TaskData) EntryID() string { return t.Value.ID }

func (t *TaskData) Task() mail.Task { return t.Value }

// AppointmentData wraps a mail.Appointment as an AppointmentRecord.
type AppointmentData struct {
	Value mail.Appointment
}

func (a *AppointmentData) Kind() mail.Kind { return mail.KindAppointment }

func (a *AppointmentData) EntryID() string { return a.Value.ID }

func (a *AppointmentData) Appointment() mail.Appointment { return a.Value }
