package imapmail

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/deskmail/deskmail/internal/mail"
)

var errNoBody = errors.New("message body not fetched")

// message is a fetched IMAP message. Header fields fall back to the
// envelope when the body could not be parsed.
type message struct {
	id       string
	folder   string
	flags    []imap.Flag
	internal time.Time
	envelope *imap.Envelope
	parsed   *mail.ParsedBody
	parseErr error
}

func newMessage(folder string, uid imap.UID, flags []imap.Flag, internal time.Time, env *imap.Envelope, raw []byte) *message {
	m := &message{
		id:       entryID(folder, uid),
		folder:   folder,
		flags:    flags,
		internal: internal,
		envelope: env,
	}
	if raw == nil {
		m.parseErr = errNoBody
		return m
	}
	m.parsed, m.parseErr = mail.ParseBody(raw)
	return m
}

// entryID joins the mailbox path and UID. UIDs contain no '#', so the last
// one separates the two.
func entryID(folder string, uid imap.UID) string {
	return folder + "#" + strconv.FormatUint(uint64(uid), 10)
}

func parseEntryID(id string) (string, imap.UID, bool) {
	i := strings.LastIndex(id, "#")
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil || n == 0 {
		return "", 0, false
	}
	return id[:i], imap.UID(n), true
}

func (m *message) Kind() mail.Kind { return mail.KindMessage }

func (m *message) EntryID() string { return m.id }

func (m *message) ConversationID() (string, error) {
	if m.parsed != nil {
		if id := m.parsed.ConversationID(); id != "" {
			return id, nil
		}
	}
	if m.envelope != nil && m.envelope.MessageID != "" {
		return m.envelope.MessageID, nil
	}
	if m.parseErr != nil {
		return "", m.parseErr
	}
	return "", nil
}

// MessageID and References make replies thread on the client side.
func (m *message) MessageID() string {
	if m.parsed != nil && m.parsed.MessageID != "" {
		return m.parsed.MessageID
	}
	if m.envelope != nil {
		return m.envelope.MessageID
	}
	return ""
}

func (m *message) References() []string {
	if m.parsed == nil {
		return nil
	}
	return m.parsed.References
}

func (m *message) Subject() (string, error) {
	if m.parsed != nil {
		return m.parsed.Subject, nil
	}
	if m.envelope != nil {
		return m.envelope.Subject, nil
	}
	return "", m.parseErr
}

func (m *message) Sender() (mail.Address, error) {
	if m.parsed != nil && m.parsed.From.Address != "" {
		return m.parsed.From, nil
	}
	if m.envelope != nil && len(m.envelope.From) > 0 {
		from := m.envelope.From[0]
		return mail.Address{Name: from.Name, Address: from.Addr()}, nil
	}
	if m.parseErr != nil {
		return mail.Address{}, m.parseErr
	}
	return mail.Address{}, nil
}

func (m *message) ReceivedAt() (time.Time, bool) { return m.internal, !m.internal.IsZero() }

func (m *message) SentAt() (time.Time, bool) {
	if m.parsed != nil && !m.parsed.Date.IsZero() {
		return m.parsed.Date, true
	}
	if m.envelope != nil && !m.envelope.Date.IsZero() {
		return m.envelope.Date, true
	}
	return time.Time{}, false
}

func (m *message) ParentFolderID() (string, error) { return m.folder, nil }

func (m *message) Recipients() ([]mail.Address, error) {
	if m.parsed != nil {
		return append(append([]mail.Address{}, m.parsed.To...), m.parsed.Cc...), nil
	}
	if m.envelope != nil {
		var out []mail.Address
		for _, a := range append(append([]imap.Address{}, m.envelope.To...), m.envelope.Cc...) {
			out = append(out, mail.Address{Name: a.Name, Address: a.Addr()})
		}
		return out, nil
	}
	return nil, m.parseErr
}

func (m *message) Body() (string, error) {
	if m.parsed == nil {
		return "", m.parseErr
	}
	return m.parsed.Body(), nil
}

func (m *message) AttachmentNames() ([]string, error) {
	if m.parsed == nil {
		return nil, m.parseErr
	}
	return m.parsed.Attachments, nil
}

func (m *message) Unread() (bool, error) { return !m.hasFlag(imap.FlagSeen), nil }

func (m *message) Importance() (mail.Importance, error) {
	if m.parsed == nil {
		return mail.ImportanceNormal, m.parseErr
	}
	return m.parsed.Importance, nil
}

// Categories lists the message keywords, the IMAP counterpart of
// category labels.
func (m *message) Categories() (string, error) {
	var keywords []string
	for _, f := range m.flags {
		if !strings.HasPrefix(string(f), `\`) && !strings.HasPrefix(string(f), "$") {
			keywords = append(keywords, string(f))
		}
	}
	return strings.Join(keywords, ", "), nil
}

func (m *message) FlagStatus() (mail.FlagStatus, error) {
	if m.hasFlag(imap.FlagFlagged) {
		return mail.FlagFlagged, nil
	}
	return mail.FlagNone, nil
}

func (m *message) hasFlag(flag imap.Flag) bool {
	for _, f := range m.flags {
		if strings.EqualFold(string(f), string(flag)) {
			return true
		}
	}
	return false
}
