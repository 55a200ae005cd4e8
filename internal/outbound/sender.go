// Package outbound delivers composed messages.
package outbound

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/deskmail/deskmail/internal/mail"
)

// Sender is an interface for sending emails
type Sender interface {
	Send(ctx context.Context, msg *mail.Outgoing) error
}

// TLSMode selects how the SMTP connection is secured.
type TLSMode string

const (
	TLSImplicit TLSMode = "tls"
	TLSStart    TLSMode = "starttls"
	TLSNone     TLSMode = "none"
)

// SMTPSender sends emails via SMTP submission
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	mode     TLSMode
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(host string, port int, username, password string, mode TLSMode) *SMTPSender {
	if mode == "" {
		mode = TLSStart
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		mode:     mode,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg *mail.Outgoing) error {
	recipients := msg.Recipients()
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}

	client, err := s.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to %s:%d: %w", s.host, s.port, err)
	}
	defer client.Close()

	if s.username != "" {
		if err := client.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.SendMail(msg.From.Address, recipients, &buf); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return client.Quit()
}

func (s *SMTPSender) dial() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	tlsConfig := &tls.Config{ServerName: s.host}

	switch s.mode {
	case TLSImplicit:
		return smtp.DialTLS(addr, tlsConfig)
	case TLSNone:
		return smtp.Dial(addr)
	default:
		return smtp.DialStartTLS(addr, tlsConfig)
	}
}

// NoopSender is a sender that does nothing (for testing or when sending is disabled)
type NoopSender struct{}

func (s *NoopSender) Send(ctx context.Context, msg *mail.Outgoing) error {
	return nil
}
