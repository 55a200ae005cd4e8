// Package backend defines the contract deskmail consumes from a mail
// application and ships an in-memory implementation of it.
package backend

import (
	"context"
	"errors"

	"github.com/deskmail/deskmail/internal/mail"
)

var (
	// ErrNotFound is returned when a folder or item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConnection is returned when the mail application cannot be reached.
	ErrConnection = errors.New("failed to connect to mail application")
)

// FolderKind names the well-known default folders.
type FolderKind string

const (
	FolderInbox    FolderKind = "inbox"
	FolderSent     FolderKind = "sent"
	FolderCalendar FolderKind = "calendar"
	FolderTasks    FolderKind = "tasks"
)

// Backend opens sessions against a mail application.
type Backend interface {
	Connect(ctx context.Context) (Session, error)
}

// Identity describes the mailbox owner.
type Identity struct {
	Address     string
	ManagerName string
}

// Session is an open handle on the mail application's namespace.
type Session interface {
	// CurrentUser returns the mailbox owner. An empty Address means the
	// backend could not determine it.
	CurrentUser(ctx context.Context) (Identity, error)

	DefaultFolder(ctx context.Context, kind FolderKind) (Folder, error)

	// FolderByName does a case-insensitive lookup: inbox subfolders first,
	// then root folders, then one level below each root.
	FolderByName(ctx context.Context, name string) (Folder, error)

	// Folders returns the folder tree, at most three levels deep.
	Folders(ctx context.Context) ([]FolderNode, error)

	ItemByID(ctx context.Context, id string) (Record, error)

	Send(ctx context.Context, msg *mail.Outgoing) error
	Move(ctx context.Context, id string, dest Folder) error
	MarkComplete(ctx context.Context, id string) error
	CreateTask(ctx context.Context, draft mail.TaskDraft) (TaskRecord, error)

	Close() error
}

// Folder is a container of records.
type Folder interface {
	ID() string
	Name() string
	Items(ctx context.Context, r Restriction) ([]Record, error)
}

// FolderNode is one entry of the folder tree.
type FolderNode struct {
	Name     string       `json:"name"`
	Children []FolderNode `json:"children,omitempty"`
}
