package mail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Outgoing represents an email to be sent
type Outgoing struct {
	From       Address   `json:"from"`
	To         []Address `json:"to"`
	Cc         []Address `json:"cc"`
	Subject    string    `json:"subject"`
	TextBody   string    `json:"text_body"`
	InReplyTo  string    `json:"in_reply_to,omitempty"`
	References []string  `json:"references,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
}

// Recipients returns every envelope recipient (To then Cc).
func (o *Outgoing) Recipients() []string {
	rcpts := make([]string, 0, len(o.To)+len(o.Cc))
	for _, a := range o.To {
		rcpts = append(rcpts, a.Address)
	}
	for _, a := range o.Cc {
		rcpts = append(rcpts, a.Address)
	}
	return rcpts
}

// WriteTo renders the message as RFC 5322 text/plain.
func (o *Outgoing) WriteTo(w io.Writer) (int64, error) {
	if o.MessageID == "" {
		o.MessageID = uuid.NewString() + "@deskmail.local"
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(o.Subject)
	h.SetMessageID(o.MessageID)
	h.SetAddressList("From", toMailAddresses([]Address{o.From}))
	h.SetAddressList("To", toMailAddresses(o.To))
	if len(o.Cc) > 0 {
		h.SetAddressList("Cc", toMailAddresses(o.Cc))
	}
	if o.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{o.InReplyTo})
		refs := append(append([]string{}, o.References...), o.InReplyTo)
		h.SetMsgIDList("References", refs)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	body, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return 0, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(body, o.TextBody); err != nil {
		return 0, fmt.Errorf("failed to write body: %w", err)
	}
	if err := body.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish message: %w", err)
	}

	return buf.WriteTo(w)
}

// ReplySubject prefixes subject with "Re: " unless it already has one.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

// ParseAddressList splits a comma or semicolon separated recipient string.
func ParseAddressList(s string) []Address {
	s = strings.ReplaceAll(s, ";", ",")
	if list, err := mail.ParseAddressList(s); err == nil {
		out := make([]Address, len(list))
		for i, a := range list {
			out[i] = Address{Name: a.Name, Address: a.Address}
		}
		return out
	}

	var out []Address
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, Address{Address: part})
		}
	}
	return out
}

// BareAddress returns the addr-spec of s, dropping any display name and
// angle brackets.
func BareAddress(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if a, err := mail.ParseAddress(s); err == nil {
		return a.Address
	}
	return strings.Trim(s, "<>")
}

func toMailAddresses(addrs []Address) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if a.Address == "" {
			continue
		}
		out = append(out, &mail.Address{Name: a.Name, Address: a.Address})
	}
	return out
}
