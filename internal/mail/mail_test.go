package mail

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

const multipartMessage = "From: Alice Example <alice@example.com>\r\n" +
	"To: Bob <bob@example.com>\r\n" +
	"Subject: Quarterly numbers\r\n" +
	"Date: Mon, 02 Jun 2025 09:00:00 +0000\r\n" +
	"Message-ID: <reply-2@example.com>\r\n" +
	"In-Reply-To: <reply-1@example.com>\r\n" +
	"References: <root@example.com> <reply-1@example.com>\r\n" +
	"X-Priority: 1\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Can you review the attached sheet?\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf; name=\"q2.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"q2.pdf\"\r\n" +
	"\r\n" +
	"JVBERi0=\r\n" +
	"--b1--\r\n"

func TestParseBody(t *testing.T) {
	parsed, err := ParseBody([]byte(multipartMessage))
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}

	if parsed.Subject != "Quarterly numbers" {
		t.Errorf("Subject = %q", parsed.Subject)
	}
	if parsed.From.Address != "alice@example.com" || parsed.From.Name != "Alice Example" {
		t.Errorf("From = %+v", parsed.From)
	}
	if got := parsed.ConversationID(); got != "root@example.com" {
		t.Errorf("ConversationID() = %q, want root@example.com", got)
	}
	if parsed.Importance != ImportanceHigh {
		t.Errorf("Importance = %v, want High", parsed.Importance)
	}
	if len(parsed.Attachments) != 1 || parsed.Attachments[0] != "q2.pdf" {
		t.Errorf("Attachments = %v", parsed.Attachments)
	}
	if !strings.Contains(parsed.Body(), "Can you review") {
		t.Errorf("Body() = %q", parsed.Body())
	}
}

func TestConversationIDFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		parsed ParsedBody
		want   string
	}{
		{"references first", ParsedBody{MessageID: "c", InReplyTo: []string{"b"}, References: []string{"a", "b"}}, "a"},
		{"in-reply-to", ParsedBody{MessageID: "c", InReplyTo: []string{"b"}}, "b"},
		{"own id", ParsedBody{MessageID: "c"}, "c"},
		{"nothing", ParsedBody{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.parsed.ConversationID(); got != tt.want {
				t.Errorf("ConversationID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTMLOnlyBody(t *testing.T) {
	raw := "From: a@example.com\r\nSubject: hi\r\nContent-Type: text/html\r\n\r\n<p>Hello <b>there</b></p>\r\n"
	parsed, err := ParseBody([]byte(raw))
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	body := parsed.Body()
	if !strings.Contains(body, "Hello") || strings.Contains(body, "<p>") {
		t.Errorf("Body() = %q, want HTML converted to text", body)
	}
}

func TestEffectiveTime(t *testing.T) {
	sent := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	received := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)

	if got := (&Message{SentAt: &sent, ReceivedAt: &received}).EffectiveTime(); !got.Equal(sent) {
		t.Errorf("sent time should win, got %v", got)
	}
	if got := (&Message{ReceivedAt: &received}).EffectiveTime(); !got.Equal(received) {
		t.Errorf("received time fallback, got %v", got)
	}
	if got := (&Message{}).EffectiveTime(); !got.IsZero() {
		t.Errorf("missing timestamps should give the zero sentinel, got %v", got)
	}
}

func TestOutgoingWriteTo(t *testing.T) {
	out := &Outgoing{
		From:      Address{Name: "Me", Address: "me@example.com"},
		To:        []Address{{Address: "you@example.com"}},
		Cc:        []Address{{Address: "cc@example.com"}},
		Subject:   ReplySubject("Plans"),
		TextBody:  "Sounds good.",
		InReplyTo: "root@example.com",
	}

	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	parsed, err := ParseBody(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if parsed.Subject != "Re: Plans" {
		t.Errorf("Subject = %q", parsed.Subject)
	}
	if len(parsed.InReplyTo) != 1 || parsed.InReplyTo[0] != "root@example.com" {
		t.Errorf("InReplyTo = %v", parsed.InReplyTo)
	}
	if strings.TrimSpace(parsed.TextBody) != "Sounds good." {
		t.Errorf("TextBody = %q", parsed.TextBody)
	}
	if got := out.Recipients(); len(got) != 2 {
		t.Errorf("Recipients() = %v", got)
	}
}

func TestReplySubject(t *testing.T) {
	if got := ReplySubject("RE: status"); got != "RE: status" {
		t.Errorf("ReplySubject() = %q", got)
	}
	if got := ReplySubject("status"); got != "Re: status" {
		t.Errorf("ReplySubject() = %q", got)
	}
}

func TestParseAddressList(t *testing.T) {
	got := ParseAddressList("a@example.com; Bob <b@example.com>")
	if len(got) != 2 || got[1].Address != "b@example.com" || got[1].Name != "Bob" {
		t.Errorf("ParseAddressList() = %+v", got)
	}
}

func TestFromAddress(t *testing.T) {
	tests := []struct {
		sender string
		owner  string
		want   bool
	}{
		{"me@example.com", "me@example.com", true},
		{"ME@Example.com", "me@example.com", true},
		{"Me <me@example.com>", "me@example.com", true},
		{"me@example.com", "Me <me@example.com>", true},
		{"some@example.com", "me@example.com", false},
		{"acme@example.com", "me@example.com", false},
		{"me@example.com.evil.org", "me@example.com", false},
		{"", "me@example.com", false},
		{"me@example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.sender+"/"+tt.owner, func(t *testing.T) {
			m := &Message{SenderAddress: tt.sender}
			if got := m.FromAddress(tt.owner); got != tt.want {
				t.Errorf("FromAddress(%q) with sender %q = %v, want %v", tt.owner, tt.sender, got, tt.want)
			}
		})
	}
}

func TestImportanceZeroValue(t *testing.T) {
	var m Message
	if m.Importance != ImportanceNormal || m.Importance.String() != "Normal" {
		t.Errorf("zero importance = %v (%d)", m.Importance, m.Importance)
	}
	if !(ImportanceLow < ImportanceNormal && ImportanceNormal < ImportanceHigh) {
		t.Error("importance levels out of order")
	}
}
