package analysis

import (
	"strings"
	"time"

	"github.com/deskmail/deskmail/internal/mail"
)

// SnippetLength is the body budget of a priority entry, in characters.
const SnippetLength = 500

// PriorityEntry is the feature row emitted for one message.
type PriorityEntry struct {
	Ordinal     int        `json:"email_number"`
	Sender      string     `json:"sender"`
	Subject     string     `json:"subject"`
	Snippet     string     `json:"body_snippet"`
	ReceivedAt  *time.Time `json:"received_time"`
	Importance  string     `json:"importance"`
	FromManager bool       `json:"is_from_manager"`

	Message *mail.Message `json:"-"`
}

// Prioritize emits feature rows for the first limit messages of a
// newest-first list. Ordinals start at 1.
func Prioritize(msgs []*mail.Message, who Actor, limit int) []PriorityEntry {
	if limit > len(msgs) {
		limit = len(msgs)
	}
	out := make([]PriorityEntry, 0, limit)
	for i, m := range msgs[:limit] {
		out = append(out, PriorityEntry{
			Ordinal:     i + 1,
			Sender:      m.SenderName,
			Subject:     m.Subject,
			Snippet:     Snippet(m.Body),
			ReceivedAt:  m.ReceivedAt,
			Importance:  m.Importance.String(),
			FromManager: who.IsManager(m),
			Message:     m,
		})
	}
	return out
}

// Snippet trims body, keeps at most SnippetLength characters and appends an
// ellipsis.
func Snippet(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) > SnippetLength {
		runes = runes[:SnippetLength]
	}
	return string(runes) + "..."
}
