// Package mailbox implements the assistant-facing mailbox operations. Every
// method validates its arguments before touching the backend and returns a
// typed result; rendering to text happens in the tools package.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskmail/deskmail/internal/analysis"
	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/formatter"
	"github.com/deskmail/deskmail/internal/mail"
	"github.com/deskmail/deskmail/internal/session"
)

// Argument limits.
const (
	MaxLookbackDays   = 180
	MaxPrioritizeDays = 31
	MinPrioritizeScan = 5
	MaxPrioritizeScan = 50
	MaxBriefingDays   = 14
	MaxActionableDays = 60
)

// Argument defaults used by the tool surface.
const (
	DefaultListDays       = 7
	DefaultPrioritizeDays = 1
	DefaultPrioritizeScan = 25
	DefaultBriefingDays   = 3
	DefaultFollowUpDays   = 2
	DefaultActionableDays = 7
	DefaultLoadDays       = 30
)

// Service runs mailbox operations against a backend.
type Service struct {
	backend backend.Backend
	cache   *session.Cache
	from    mail.Address
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger.With().Str("component", "mailbox").Logger() }
}

// WithFrom sets the identity used on outgoing mail. When unset the mailbox
// owner's address is used.
func WithFrom(from mail.Address) Option {
	return func(s *Service) { s.from = from }
}

// New creates a Service. The cache is owned by the caller and scoped to one
// assistant session.
func New(b backend.Backend, cache *session.Cache, opts ...Option) *Service {
	s := &Service{
		backend: b,
		cache:   cache,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the session cache.
func (s *Service) Cache() *session.Cache {
	return s.cache
}

func (s *Service) connect(ctx context.Context) (backend.Session, error) {
	sess, err := s.backend.Connect(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to connect to mail backend")
		if errors.Is(err, backend.ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", backend.ErrConnection, err)
	}
	return sess, nil
}

func (s *Service) closeSession(sess backend.Session) {
	if err := sess.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close backend session")
	}
}

// formatterFor binds a formatter to the session's Sent Items folder. When
// that folder is unavailable every message is treated as received.
func (s *Service) formatterFor(ctx context.Context, sess backend.Session) *formatter.Formatter {
	sent, err := sess.DefaultFolder(ctx, backend.FolderSent)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Sent folder unavailable, treating all items as received")
		return formatter.New("")
	}
	return formatter.New(sent.ID())
}

// folder resolves an optional folder name, defaulting to the inbox.
func (s *Service) folder(ctx context.Context, sess backend.Session, name string) (backend.Folder, error) {
	if name == "" {
		f, err := sess.DefaultFolder(ctx, backend.FolderInbox)
		if err != nil {
			return nil, fmt.Errorf("failed to open inbox: %w", err)
		}
		return f, nil
	}
	f, err := sess.FolderByName(ctx, name)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, notFound(err, "Folder '%s' not found", name)
		}
		return nil, fmt.Errorf("failed to look up folder %q: %w", name, err)
	}
	return f, nil
}

// messages formats every message record of folder matching r. Records that
// cannot be formatted are logged and skipped.
func (s *Service) messages(ctx context.Context, folder backend.Folder, r backend.Restriction, f *formatter.Formatter) ([]*mail.Message, error) {
	recs, err := folder.Items(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder %s: %w", folder.Name(), err)
	}

	out := make([]*mail.Message, 0, len(recs))
	for _, rec := range recs {
		mr, ok := rec.(backend.MessageRecord)
		if !ok {
			continue
		}
		msg, err := f.Message(mr)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", rec.EntryID()).Str("folder", folder.Name()).Msg("Skipping unreadable item")
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// identity returns the mailbox owner. A missing address is fatal for the
// conversation tools.
func (s *Service) identity(ctx context.Context, sess backend.Session) (analysis.Actor, error) {
	user, err := sess.CurrentUser(ctx)
	if err != nil {
		return analysis.Actor{}, fmt.Errorf("failed to resolve current user: %w", err)
	}
	if user.Address == "" {
		return analysis.Actor{}, ErrNoUserAddress
	}
	return analysis.Actor{Address: user.Address, ManagerName: user.ManagerName}, nil
}

// conversations fetches inbox and sent messages from the last days and
// groups them into threads.
func (s *Service) conversations(ctx context.Context, sess backend.Session, days int) ([]*analysis.Thread, error) {
	since := s.now().AddDate(0, 0, -days)
	f := s.formatterFor(ctx, sess)

	inbox, err := sess.DefaultFolder(ctx, backend.FolderInbox)
	if err != nil {
		return nil, fmt.Errorf("failed to open inbox: %w", err)
	}
	received, err := s.messages(ctx, inbox, backend.Restriction{ReceivedSince: since}, f)
	if err != nil {
		return nil, err
	}

	var sent []*mail.Message
	if sentFolder, err := sess.DefaultFolder(ctx, backend.FolderSent); err != nil {
		s.logger.Warn().Err(err).Msg("Sent folder unavailable, analysing inbox only")
	} else {
		sent, err = s.messages(ctx, sentFolder, backend.Restriction{SentSince: since}, f)
		if err != nil {
			return nil, err
		}
	}

	all := append(received, sent...)
	threads := analysis.Group(all, s.logger)
	s.logger.Debug().Int("messages", len(all)).Int("threads", len(threads)).Int("days", days).Msg("Grouped conversations")
	return threads, nil
}

func (s *Service) cached(ordinal int) (*mail.Message, error) {
	msg, err := s.cache.Get(ordinal)
	if err != nil {
		var noEntry *session.NoEntryError
		if errors.As(err, &noEntry) && noEntry.Empty {
			return nil, notFound(err, "No emails have been listed yet. Please use list_recent_emails, search_emails, or prioritize_inbox first.")
		}
		return nil, notFound(err, "Email #%d not found in the current listing.", ordinal)
	}
	return msg, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
