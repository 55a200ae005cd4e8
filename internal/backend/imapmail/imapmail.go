// Package imapmail implements the mail backend on top of an IMAP account.
// Mail comes from the IMAP server; tasks and calendar entries, which IMAP
// has no notion of, live in the local SQLite store.
package imapmail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/mail"
	"github.com/deskmail/deskmail/internal/outbound"
	"github.com/deskmail/deskmail/internal/storage"
)

const inboxName = "INBOX"

// Config holds the IMAP account settings.
type Config struct {
	Host       string
	Port       int
	TLS        string // "tls", "starttls" or "none"
	Username   string
	Password   string
	SentFolder string

	UserAddress string
	ManagerName string

	// MaxMessages caps how many of the newest matching messages a single
	// folder read fetches.
	MaxMessages int
}

// Backend connects to an IMAP server.
type Backend struct {
	cfg    Config
	store  *storage.Store
	sender outbound.Sender
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new IMAP backend. Outgoing mail is handed to sender and a
// copy is appended to the Sent folder.
func New(cfg Config, store *storage.Store, sender outbound.Sender, logger zerolog.Logger) *Backend {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 500
	}
	if sender == nil {
		sender = &outbound.NoopSender{}
	}
	return &Backend{
		cfg:    cfg,
		store:  store,
		sender: sender,
		logger: logger.With().Str("component", "imap").Logger(),
		now:    time.Now,
	}
}

// Connect dials and authenticates a new IMAP session.
func (b *Backend) Connect(ctx context.Context) (backend.Session, error) {
	addr := net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.Port))

	client, err := b.dial(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to IMAP %s: %v", backend.ErrConnection, addr, err)
	}

	if err := client.Login(b.cfg.Username, b.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: authentication failed for %s: %v", backend.ErrConnection, b.cfg.Username, err)
	}

	b.logger.Debug().Str("addr", addr).Str("user", b.cfg.Username).Msg("IMAP session opened")
	return &session{b: b, client: client}, nil
}

func (b *Backend) dial(addr string) (*imapclient.Client, error) {
	switch strings.ToLower(b.cfg.TLS) {
	case "starttls":
		return imapclient.DialStartTLS(addr, nil)
	case "none":
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, err
		}
		return imapclient.New(conn, nil), nil
	default:
		return imapclient.DialTLS(addr, nil)
	}
}

type session struct {
	b      *Backend
	client *imapclient.Client

	mailboxes []mailboxInfo
	selected  string
}

func (s *session) CurrentUser(ctx context.Context) (backend.Identity, error) {
	return backend.Identity{Address: s.b.cfg.UserAddress, ManagerName: s.b.cfg.ManagerName}, nil
}

func (s *session) DefaultFolder(ctx context.Context, kind backend.FolderKind) (backend.Folder, error) {
	switch kind {
	case backend.FolderInbox:
		return &mailFolder{s: s, path: inboxName, name: "Inbox"}, nil
	case backend.FolderSent:
		infos, err := s.list()
		if err != nil {
			return nil, err
		}
		info, ok := sentMailbox(infos, s.b.cfg.SentFolder)
		if !ok {
			return nil, fmt.Errorf("sent folder: %w", backend.ErrNotFound)
		}
		return &mailFolder{s: s, path: info.Path, name: info.Name}, nil
	case backend.FolderTasks:
		return &taskFolder{store: s.b.store}, nil
	case backend.FolderCalendar:
		return &calendarFolder{store: s.b.store}, nil
	}
	return nil, fmt.Errorf("default folder %q: %w", kind, backend.ErrNotFound)
}

func (s *session) FolderByName(ctx context.Context, name string) (backend.Folder, error) {
	infos, err := s.list()
	if err != nil {
		return nil, err
	}
	info, ok := lookup(infos, name)
	if !ok {
		return nil, fmt.Errorf("folder %q: %w", name, backend.ErrNotFound)
	}
	return &mailFolder{s: s, path: info.Path, name: info.Name}, nil
}

func (s *session) Folders(ctx context.Context) ([]backend.FolderNode, error) {
	infos, err := s.list()
	if err != nil {
		return nil, err
	}
	return tree(infos, 3), nil
}

// list runs LIST once per session.
func (s *session) list() ([]mailboxInfo, error) {
	if s.mailboxes != nil {
		return s.mailboxes, nil
	}
	data, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("LIST failed: %w", err)
	}
	s.mailboxes = mailboxInfos(data)
	return s.mailboxes, nil
}

func (s *session) selectMailbox(path string, readOnly bool) error {
	if s.selected == path && !readOnly {
		return nil
	}
	if _, err := s.client.Select(path, &imap.SelectOptions{ReadOnly: readOnly}).Wait(); err != nil {
		s.selected = ""
		return fmt.Errorf("SELECT %s failed: %w", path, err)
	}
	if readOnly {
		s.selected = ""
	} else {
		s.selected = path
	}
	return nil
}

func (s *session) ItemByID(ctx context.Context, id string) (backend.Record, error) {
	if path, uid, ok := parseEntryID(id); ok {
		if err := s.selectMailbox(path, true); err != nil {
			return nil, err
		}
		msgs, err := s.fetch(path, []imap.UID{uid})
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			return nil, fmt.Errorf("item %q: %w", id, backend.ErrNotFound)
		}
		return msgs[0], nil
	}

	task, err := s.b.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task != nil {
		return &backend.TaskData{Value: *task}, nil
	}
	appt, err := s.b.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt != nil {
		return &backend.AppointmentData{Value: *appt}, nil
	}
	return nil, fmt.Errorf("item %q: %w", id, backend.ErrNotFound)
}

// fetch downloads full messages for uids from the selected mailbox path.
func (s *session) fetch(path string, uids []imap.UID) ([]backend.Record, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	bufs, err := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("FETCH failed: %w", err)
	}

	recs := make([]backend.Record, 0, len(bufs))
	for _, buf := range bufs {
		raw := buf.FindBodySection(bodySection)
		msg := newMessage(path, buf.UID, buf.Flags, buf.InternalDate, buf.Envelope, raw)
		if msg.parseErr != nil {
			s.b.logger.Warn().Err(msg.parseErr).Str("id", msg.id).Msg("Failed to parse message body")
		}
		recs = append(recs, msg)
	}
	return recs, nil
}

func (s *session) Send(ctx context.Context, msg *mail.Outgoing) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString() + "@deskmail"
	}
	if err := s.b.sender.Send(ctx, msg); err != nil {
		return err
	}

	sent, err := s.DefaultFolder(ctx, backend.FolderSent)
	if err != nil {
		s.b.logger.Warn().Err(err).Msg("No Sent folder, not keeping a copy")
		return nil
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}
	if err := s.appendMessage(sent.ID(), buf.Bytes()); err != nil {
		s.b.logger.Warn().Err(err).Str("folder", sent.ID()).Msg("Failed to store sent copy")
	}
	return nil
}

func (s *session) appendMessage(path string, raw []byte) error {
	cmd := s.client.Append(path, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  s.b.now(),
	})
	if _, err := cmd.Write(raw); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("APPEND failed: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("APPEND failed: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("APPEND failed: %w", err)
	}
	return nil
}

func (s *session) Move(ctx context.Context, id string, dest backend.Folder) error {
	target, ok := dest.(*mailFolder)
	if !ok || target.s != s {
		return fmt.Errorf("move: destination %q is not a mail folder of this session", dest.Name())
	}
	path, uid, ok := parseEntryID(id)
	if !ok {
		return fmt.Errorf("move: item %q is not a message", id)
	}
	if err := s.selectMailbox(path, false); err != nil {
		return err
	}
	if _, err := s.client.Move(imap.UIDSetNum(uid), target.path).Wait(); err != nil {
		return fmt.Errorf("MOVE to %s failed: %w", target.path, err)
	}
	return nil
}

func (s *session) MarkComplete(ctx context.Context, id string) error {
	changed, err := s.b.store.CompleteTask(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("task %q: %w", id, backend.ErrNotFound)
	}
	return nil
}

func (s *session) CreateTask(ctx context.Context, draft mail.TaskDraft) (backend.TaskRecord, error) {
	if strings.TrimSpace(draft.Subject) == "" {
		return nil, fmt.Errorf("create task: empty subject")
	}
	due := draft.DueDate
	task := mail.Task{
		ID:          uuid.NewString(),
		Subject:     draft.Subject,
		DueDate:     &due,
		ReminderSet: draft.ReminderAt != nil,
		ReminderAt:  draft.ReminderAt,
	}
	if err := s.b.store.SaveTask(ctx, &task); err != nil {
		return nil, err
	}
	return &backend.TaskData{Value: task}, nil
}

func (s *session) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		s.b.logger.Debug().Err(err).Msg("IMAP logout failed")
	}
	return s.client.Close()
}

// mailFolder is an IMAP mailbox. Its ID is the full mailbox path.
type mailFolder struct {
	s    *session
	path string
	name string
}

func (f *mailFolder) ID() string { return f.path }

func (f *mailFolder) Name() string { return f.name }

// Items searches the mailbox server-side with the date and flag clauses,
// then applies the full restriction locally.
func (f *mailFolder) Items(ctx context.Context, r backend.Restriction) ([]backend.Record, error) {
	if err := f.s.selectMailbox(f.path, true); err != nil {
		return nil, err
	}

	data, err := f.s.client.UIDSearch(searchCriteria(r), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("SEARCH failed: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) > f.s.b.cfg.MaxMessages {
		f.s.b.logger.Debug().
			Str("folder", f.path).
			Int("matches", len(uids)).
			Int("limit", f.s.b.cfg.MaxMessages).
			Msg("Truncating search results")
		uids = uids[len(uids)-f.s.b.cfg.MaxMessages:]
	}

	recs, err := f.s.fetch(f.path, uids)
	if err != nil {
		return nil, err
	}
	return r.Apply(recs), nil
}

// searchCriteria translates the clauses IMAP can evaluate. SINCE only has
// day granularity, so the local pass still trims to the exact instant.
func searchCriteria(r backend.Restriction) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if !r.ReceivedSince.IsZero() {
		criteria.Since = dayOf(r.ReceivedSince)
	}
	if !r.SentSince.IsZero() {
		criteria.SentSince = dayOf(r.SentSince)
	}
	if r.UnreadOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	if r.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: r.Subject})
	}
	return criteria
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// taskFolder serves tasks from the local store.
type taskFolder struct {
	store *storage.Store
}

func (f *taskFolder) ID() string { return "tasks" }

func (f *taskFolder) Name() string { return "Tasks" }

func (f *taskFolder) Items(ctx context.Context, r backend.Restriction) ([]backend.Record, error) {
	tasks, err := f.store.ListTasks(ctx, storage.TaskFilter{IncompleteOnly: r.IncompleteOnly})
	if err != nil {
		return nil, err
	}
	recs := make([]backend.Record, len(tasks))
	for i, t := range tasks {
		recs[i] = &backend.TaskData{Value: *t}
	}
	return r.Apply(recs), nil
}

// calendarFolder serves appointments from the local store.
type calendarFolder struct {
	store *storage.Store
}

func (f *calendarFolder) ID() string { return "calendar" }

func (f *calendarFolder) Name() string { return "Calendar" }

func (f *calendarFolder) Items(ctx context.Context, r backend.Restriction) ([]backend.Record, error) {
	appts, err := f.store.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]backend.Record, len(appts))
	for i, a := range appts {
		recs[i] = &backend.AppointmentData{Value: *a}
	}
	return r.Apply(recs), nil
}
