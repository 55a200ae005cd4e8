package mail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
)

// ParsedBody is the decoded content of a raw RFC 5322 message.
type ParsedBody struct {
	MessageID   string
	InReplyTo   []string
	References  []string
	Subject     string
	From        Address
	To          []Address
	Cc          []Address
	Date        time.Time
	Importance  Importance
	TextBody    string
	HTMLBody    string
	Attachments []string
}

// ConversationID derives a stable thread key from the reference headers:
// the oldest reference, then the parent, then the message itself.
func (p *ParsedBody) ConversationID() string {
	if len(p.References) > 0 {
		return p.References[0]
	}
	if len(p.InReplyTo) > 0 {
		return p.InReplyTo[0]
	}
	return p.MessageID
}

// Body returns the best available body, converting HTML to text when no
// plain part exists.
func (p *ParsedBody) Body() string {
	if p.TextBody != "" {
		return p.TextBody
	}
	if p.HTMLBody == "" {
		return ""
	}
	return HTMLToText(p.HTMLBody)
}

// HTMLToText renders an HTML body as readable text.
func HTMLToText(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err == nil {
		return strings.TrimSpace(md)
	}
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(html))
}

// ParseBody parses a raw email message
func ParseBody(raw []byte) (*ParsedBody, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	header := mail.Header{Header: entity.Header}
	parsed := &ParsedBody{
		Importance: importanceFromHeader(header),
	}

	parsed.MessageID, _ = header.MessageID()
	parsed.InReplyTo, _ = header.MsgIDList("In-Reply-To")
	parsed.References, _ = header.MsgIDList("References")

	if subject, err := header.Subject(); err == nil {
		parsed.Subject = subject
	} else {
		parsed.Subject = header.Get("Subject")
	}

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = Address{Name: from[0].Name, Address: from[0].Address}
	}
	if to, err := header.AddressList("To"); err == nil {
		parsed.To = fromMailAddresses(to)
	}
	if cc, err := header.AddressList("Cc"); err == nil {
		parsed.Cc = fromMailAddresses(cc)
	}
	if date, err := header.Date(); err == nil {
		parsed.Date = date
	}

	if err := parseEntity(entity, parsed); err != nil {
		return nil, fmt.Errorf("failed to parse body: %w", err)
	}

	return parsed, nil
}

// parseEntity recursively walks the message body and attachments
func parseEntity(entity *message.Entity, parsed *ParsedBody) error {
	mediaType, params, err := entity.Header.ContentType()
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := entity.MultipartReader()
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if err := parseEntity(part, parsed); err != nil {
				return err
			}
		}
		return nil
	}

	disposition, dispParams, _ := entity.Header.ContentDisposition()
	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}

	if disposition == "attachment" || (filename != "" && disposition != "inline") {
		parsed.Attachments = append(parsed.Attachments, filename)
		_, err := io.Copy(io.Discard, entity.Body)
		return err
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	switch {
	case strings.HasPrefix(mediaType, "text/plain") && parsed.TextBody == "":
		parsed.TextBody = string(body)
	case strings.HasPrefix(mediaType, "text/html") && parsed.HTMLBody == "":
		parsed.HTMLBody = string(body)
	}

	return nil
}

func importanceFromHeader(h mail.Header) Importance {
	switch strings.ToLower(strings.TrimSpace(h.Get("Importance"))) {
	case "high":
		return ImportanceHigh
	case "low":
		return ImportanceLow
	}

	prio := strings.TrimSpace(h.Get("X-Priority"))
	if prio == "" {
		return ImportanceNormal
	}
	switch prio[0] {
	case '1', '2':
		return ImportanceHigh
	case '4', '5':
		return ImportanceLow
	}
	return ImportanceNormal
}

func fromMailAddresses(list []*mail.Address) []Address {
	out := make([]Address, len(list))
	for i, a := range list {
		out[i] = Address{Name: a.Name, Address: a.Address}
	}
	return out
}
