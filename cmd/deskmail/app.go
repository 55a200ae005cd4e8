package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/backend/imapmail"
	"github.com/deskmail/deskmail/internal/config"
	"github.com/deskmail/deskmail/internal/mail"
	"github.com/deskmail/deskmail/internal/mailbox"
	"github.com/deskmail/deskmail/internal/outbound"
	"github.com/deskmail/deskmail/internal/session"
	"github.com/deskmail/deskmail/internal/storage"
	"github.com/deskmail/deskmail/internal/tools"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *storage.Store
	registry *tools.Registry
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	b, err := newBackend(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	b = backend.NewBreaker(b, cfg.Backend.BreakerThreshold, time.Duration(cfg.Backend.BreakerCooldown)*time.Second, logger)

	opts := []mailbox.Option{mailbox.WithLogger(logger)}
	if cfg.SMTP.FromAddress != "" {
		opts = append(opts, mailbox.WithFrom(mail.Address{Name: cfg.SMTP.FromName, Address: cfg.SMTP.FromAddress}))
	}
	svc := mailbox.New(b, session.New(), opts...)

	registry := tools.NewRegistry(logger)
	tools.RegisterMailbox(registry, svc)
	sessionID := uuid.NewString()
	registry.SetAudit(store, sessionID)

	logger.Info().
		Str("provider", cfg.Backend.Provider).
		Str("session", sessionID).
		Int("tools", len(registry.GetAll())).
		Msg("deskmail ready")

	return &app{cfg: cfg, logger: logger, store: store, registry: registry}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newBackend(cfg *config.Config, store *storage.Store, logger zerolog.Logger) (backend.Backend, error) {
	switch strings.ToLower(cfg.Backend.Provider) {
	case "memory":
		if cfg.Backend.Fixture == "" {
			return backend.NewMemory(backend.Identity{
				Address:     cfg.Backend.UserAddress,
				ManagerName: cfg.Backend.ManagerName,
			}), nil
		}
		return backend.LoadFixture(cfg.Backend.Fixture)
	case "imap":
		return imapmail.New(imapmail.Config{
			Host:        cfg.Backend.Host,
			Port:        cfg.Backend.Port,
			TLS:         cfg.Backend.TLS,
			Username:    cfg.Backend.Username,
			Password:    cfg.Backend.Password,
			SentFolder:  cfg.Backend.SentFolder,
			UserAddress: cfg.Backend.UserAddress,
			ManagerName: cfg.Backend.ManagerName,
			MaxMessages: cfg.Backend.MaxMessages,
		}, store, newSender(cfg.SMTP, logger), logger), nil
	}
	return nil, fmt.Errorf("unknown backend provider %q", cfg.Backend.Provider)
}

func newSender(cfg config.SMTPOutConfig, logger zerolog.Logger) outbound.Sender {
	switch strings.ToLower(cfg.Provider) {
	case "resend":
		return outbound.NewResendSender(cfg.ResendKey)
	case "smtp":
		return outbound.NewSMTPSender(cfg.Host, cfg.Port, cfg.Username, cfg.Password, outbound.TLSMode(strings.ToLower(cfg.TLS)))
	}
	logger.Warn().Msg("No outbound provider configured, replies and new emails will not be delivered")
	return &outbound.NoopSender{}
}
