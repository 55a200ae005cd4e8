package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/deskmail/deskmail/internal/mail"
)

// ThreadStatus summarises the last message of a thread.
type ThreadStatus struct {
	Ordinal       int       `json:"email_number"`
	Subject       string    `json:"subject"`
	LastFrom      string    `json:"last_email_from"`
	LastTimestamp time.Time `json:"last_email_timestamp"`
	LastUnread    bool      `json:"is_last_email_unread"`
	FromManager   bool      `json:"is_from_manager"`
	HasQuestion   bool      `json:"contains_question_in_body"`
	DaysSinceLast int       `json:"days_since_last_email"`
	FollowUp      string    `json:"follow_up_suggestion,omitempty"`

	Last *mail.Message `json:"-"`
}

// Status derives the status of t at instant now. A follow-up suggestion is
// added when the last message is mine and at least followUpDays old.
func Status(t *Thread, who Actor, now time.Time, followUpDays int) ThreadStatus {
	last := t.Last()
	mine := who.IsMe(last)
	at := last.EffectiveTime()
	days := wholeDays(now.Sub(at))

	st := ThreadStatus{
		Subject:       last.Subject,
		LastFrom:      last.SenderName,
		LastTimestamp: at,
		LastUnread:    last.Unread && !mine,
		FromManager:   who.IsManager(last),
		HasQuestion:   HasQuestion(last.Body),
		DaysSinceLast: days,
		Last:          last,
	}
	if mine {
		st.LastFrom = "me"
		if days >= followUpDays {
			st.FollowUp = fmt.Sprintf("Awaiting reply for %d days.", days)
		}
	}
	return st
}

// SortStatuses orders unread threads first, newest first within each group.
func SortStatuses(statuses []ThreadStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		a, b := statuses[i], statuses[j]
		if a.LastUnread != b.LastUnread {
			return a.LastUnread
		}
		return a.LastTimestamp.After(b.LastTimestamp)
	})
}
