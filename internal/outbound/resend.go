package outbound

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/deskmail/deskmail/internal/mail"
)

// ResendSender sends emails via Resend API
type ResendSender struct {
	client *resend.Client
}

// NewResendSender creates a new Resend sender
func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
	}
}

func (s *ResendSender) Send(ctx context.Context, msg *mail.Outgoing) error {
	_, err := s.client.Emails.SendWithContext(ctx, resendRequest(msg))
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

func resendRequest(msg *mail.Outgoing) *resend.SendEmailRequest {
	to := make([]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = addr.Address
	}

	params := &resend.SendEmailRequest{
		From:    msg.From.String(),
		To:      to,
		Subject: msg.Subject,
		Text:    msg.TextBody,
	}

	for _, addr := range msg.Cc {
		params.Cc = append(params.Cc, addr.Address)
	}

	if msg.InReplyTo != "" {
		refs := append(append([]string{}, msg.References...), msg.InReplyTo)
		for i, r := range refs {
			refs[i] = "<" + r + ">"
		}
		params.Headers = map[string]string{
			"In-Reply-To": "<" + msg.InReplyTo + ">",
			"References":  strings.Join(refs, " "),
		}
	}

	return params
}
