package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskmail/deskmail/internal/mail"
)

// Memory is an in-process mail application. It backs the "memory" provider
// and the test suites.
type Memory struct {
	mu sync.Mutex

	user  Identity
	roots []*MemoryFolder
	well  map[FolderKind]*MemoryFolder

	sent      []*mail.Outgoing
	mutations int

	// ConnectErr, when set, makes Connect fail with ErrConnection.
	ConnectErr error
	// Now stamps sent messages. Defaults to time.Now.
	Now func() time.Time
}

// MemoryFolder is a folder of a Memory backend.
type MemoryFolder struct {
	owner    *Memory
	id       string
	name     string
	children []*MemoryFolder
	items    []Record
}

// NewMemory creates a mailbox with the default Inbox, Sent Items, Calendar,
// Tasks and Deleted Items folders under a single root.
func NewMemory(user Identity) *Memory {
	m := &Memory{user: user, well: make(map[FolderKind]*MemoryFolder), Now: time.Now}
	root := m.AddFolder(nil, "Mailbox")
	m.well[FolderInbox] = m.AddFolder(root, "Inbox")
	m.well[FolderSent] = m.AddFolder(root, "Sent Items")
	m.well[FolderCalendar] = m.AddFolder(root, "Calendar")
	m.well[FolderTasks] = m.AddFolder(root, "Tasks")
	m.AddFolder(root, "Deleted Items")
	return m
}

// Folder returns a well-known folder.
func (m *Memory) Folder(kind FolderKind) *MemoryFolder {
	return m.well[kind]
}

// AddFolder creates a folder under parent, or a root folder when parent is nil.
func (m *Memory) AddFolder(parent *MemoryFolder, name string) *MemoryFolder {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := &MemoryFolder{owner: m, id: "folder-" + uuid.NewString(), name: name}
	if parent == nil {
		m.roots = append(m.roots, f)
	} else {
		parent.children = append(parent.children, f)
	}
	return f
}

// AddMessage stores d in folder f, assigning an id when d has none.
func (m *Memory) AddMessage(f *MemoryFolder, d *MessageData) *MessageData {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.FolderID = f.id
	f.items = append(f.items, d)
	return d
}

// AddTask stores t in the Tasks folder.
func (m *Memory) AddTask(t mail.Task) *TaskData {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	rec := &TaskData{Value: t}
	tasks := m.well[FolderTasks]
	tasks.items = append(tasks.items, rec)
	return rec
}

// AddAppointment stores a in the Calendar folder.
func (m *Memory) AddAppointment(a mail.Appointment) *AppointmentData {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	rec := &AppointmentData{Value: a}
	cal := m.well[FolderCalendar]
	cal.items = append(cal.items, rec)
	return rec
}

// Outbox returns every message handed to Send.
func (m *Memory) Outbox() []*mail.Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*mail.Outgoing(nil), m.sent...)
}

// Mutations counts successful send, move, complete and create calls.
func (m *Memory) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutations
}

// Connect opens a session on the in-memory mailbox.
func (m *Memory) Connect(ctx context.Context) (Session, error) {
	if m.ConnectErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, m.ConnectErr)
	}
	return &memorySession{m: m}, nil
}

func (f *MemoryFolder) ID() string { return f.id }

func (f *MemoryFolder) Name() string { return f.name }

func (f *MemoryFolder) Items(ctx context.Context, r Restriction) ([]Record, error) {
	f.owner.mu.Lock()
	defer f.owner.mu.Unlock()
	return r.Apply(f.items), nil
}

type memorySession struct {
	m *Memory
}

func (s *memorySession) CurrentUser(ctx context.Context) (Identity, error) {
	return s.m.user, nil
}

func (s *memorySession) DefaultFolder(ctx context.Context, kind FolderKind) (Folder, error) {
	f, ok := s.m.well[kind]
	if !ok {
		return nil, fmt.Errorf("default folder %q: %w", kind, ErrNotFound)
	}
	return f, nil
}

func (s *memorySession) FolderByName(ctx context.Context, name string) (Folder, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	for _, f := range s.m.well[FolderInbox].children {
		if strings.EqualFold(f.name, name) {
			return f, nil
		}
	}
	for _, f := range s.m.roots {
		if strings.EqualFold(f.name, name) {
			return f, nil
		}
	}
	for _, root := range s.m.roots {
		for _, f := range root.children {
			if strings.EqualFold(f.name, name) {
				return f, nil
			}
		}
	}
	return nil, fmt.Errorf("folder %q: %w", name, ErrNotFound)
}

func (s *memorySession) Folders(ctx context.Context) ([]FolderNode, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return folderTree(s.m.roots, 3), nil
}

func folderTree(folders []*MemoryFolder, depth int) []FolderNode {
	if depth == 0 || len(folders) == 0 {
		return nil
	}
	nodes := make([]FolderNode, len(folders))
	for i, f := range folders {
		nodes[i] = FolderNode{Name: f.name, Children: folderTree(f.children, depth-1)}
	}
	return nodes
}

func (s *memorySession) ItemByID(ctx context.Context, id string) (Record, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	_, idx, f := s.m.locate(id)
	if f == nil {
		return nil, fmt.Errorf("item %q: %w", id, ErrNotFound)
	}
	return f.items[idx], nil
}

// locate finds the record with id. Callers hold m.mu.
func (m *Memory) locate(id string) (Record, int, *MemoryFolder) {
	var walk func([]*MemoryFolder) (Record, int, *MemoryFolder)
	walk = func(folders []*MemoryFolder) (Record, int, *MemoryFolder) {
		for _, f := range folders {
			for i, rec := range f.items {
				if rec.EntryID() == id {
					return rec, i, f
				}
			}
			if rec, i, found := walk(f.children); found != nil {
				return rec, i, found
			}
		}
		return nil, -1, nil
	}
	return walk(m.roots)
}

func (s *memorySession) Send(ctx context.Context, msg *mail.Outgoing) error {
	if len(msg.Recipients()) == 0 {
		return fmt.Errorf("send: no recipients")
	}

	now := s.m.Now()
	conversation := msg.InReplyTo
	if conversation == "" {
		conversation = uuid.NewString()
	}
	to := append(append([]mail.Address{}, msg.To...), msg.Cc...)
	s.m.AddMessage(s.m.well[FolderSent], &MessageData{
		Conversation: conversation,
		SubjectText:  msg.Subject,
		From:         msg.From,
		Sent:         now,
		Received:     now,
		To:           to,
		BodyText:     msg.TextBody,
	})

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.sent = append(s.m.sent, msg)
	s.m.mutations++
	return nil
}

func (s *memorySession) Move(ctx context.Context, id string, dest Folder) error {
	target, ok := dest.(*MemoryFolder)
	if !ok || target.owner != s.m {
		return fmt.Errorf("move: destination %q does not belong to this mailbox", dest.Name())
	}

	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	rec, idx, src := s.m.locate(id)
	if src == nil {
		return fmt.Errorf("item %q: %w", id, ErrNotFound)
	}
	src.items = append(src.items[:idx], src.items[idx+1:]...)
	if d, ok := rec.(*MessageData); ok {
		d.FolderID = target.id
	}
	target.items = append(target.items, rec)
	s.m.mutations++
	return nil
}

func (s *memorySession) MarkComplete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	rec, _, f := s.m.locate(id)
	if f == nil {
		return fmt.Errorf("item %q: %w", id, ErrNotFound)
	}
	task, ok := rec.(*TaskData)
	if !ok {
		return fmt.Errorf("item %q is a %s, not a task", id, rec.Kind())
	}
	task.Value.Complete = true
	s.m.mutations++
	return nil
}

func (s *memorySession) CreateTask(ctx context.Context, draft mail.TaskDraft) (TaskRecord, error) {
	if strings.TrimSpace(draft.Subject) == "" {
		return nil, fmt.Errorf("create task: empty subject")
	}
	due := draft.DueDate
	rec := s.m.AddTask(mail.Task{
		Subject:     draft.Subject,
		DueDate:     &due,
		ReminderSet: draft.ReminderAt != nil,
		ReminderAt:  draft.ReminderAt,
	})

	s.m.mu.Lock()
	s.m.mutations++
	s.m.mu.Unlock()
	return rec, nil
}

func (s *memorySession) Close() error { return nil }
