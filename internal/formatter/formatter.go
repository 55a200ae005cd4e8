// Package formatter turns backend records into canonical mail items.
package formatter

import (
	"errors"
	"fmt"

	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/mail"
)

// ErrMissingID is returned for records without an entry id.
var ErrMissingID = errors.New("record has no entry id")

// Formatter normalises records. SentFolderID identifies the Sent Items
// folder; an empty value makes every message "received".
type Formatter struct {
	SentFolderID string
}

// New returns a Formatter bound to the given Sent Items folder id.
func New(sentFolderID string) *Formatter {
	return &Formatter{SentFolderID: sentFolderID}
}

// Format dispatches on the record kind.
func (f *Formatter) Format(rec backend.Record) (mail.Item, error) {
	var (
		item mail.Item
		err  error
	)
	switch v := rec.(type) {
	case backend.MessageRecord:
		item, err = f.Message(v)
	case backend.TaskRecord:
		item, err = Task(v)
	case backend.AppointmentRecord:
		item, err = Appointment(v)
	default:
		return nil, fmt.Errorf("unsupported record kind %q", rec.Kind())
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Message formats a mail record. Entry id, subject and sender are required;
// every other field falls back to its zero value when unreadable.
func (f *Formatter) Message(rec backend.MessageRecord) (*mail.Message, error) {
	if rec.EntryID() == "" {
		return nil, ErrMissingID
	}
	subject, err := rec.Subject()
	if err != nil {
		return nil, fmt.Errorf("failed to read subject of %s: %w", rec.EntryID(), err)
	}
	sender, err := rec.Sender()
	if err != nil {
		return nil, fmt.Errorf("failed to read sender of %s: %w", rec.EntryID(), err)
	}

	msg := &mail.Message{
		ID:            rec.EntryID(),
		Subject:       subject,
		SenderName:    sender.Name,
		SenderAddress: sender.Address,
		IsSent:        f.isSent(rec),
		Importance:    mail.ImportanceNormal,
		Recipients:    []string{},
	}
	if msg.SenderName == "" {
		msg.SenderName = sender.Address
	}

	if at, ok := rec.ReceivedAt(); ok {
		msg.ReceivedAt = &at
	}
	if at, ok := rec.SentAt(); ok {
		msg.SentAt = &at
	}
	if conv, err := rec.ConversationID(); err == nil {
		msg.ConversationID = conv
	}
	if body, err := rec.Body(); err == nil {
		msg.Body = body
	}
	if rcpts, err := rec.Recipients(); err == nil {
		for _, r := range rcpts {
			msg.Recipients = append(msg.Recipients, r.String())
		}
	}
	if names, err := rec.AttachmentNames(); err == nil {
		msg.AttachmentCount = len(names)
	}
	if unread, err := rec.Unread(); err == nil {
		msg.Unread = unread
	}
	if imp, err := rec.Importance(); err == nil {
		msg.Importance = imp
	}
	if cats, err := rec.Categories(); err == nil {
		msg.Categories = cats
	}
	if flag, err := rec.FlagStatus(); err == nil {
		msg.Flag = flag
	}

	return msg, nil
}

func (f *Formatter) isSent(rec backend.MessageRecord) bool {
	if f.SentFolderID == "" {
		return false
	}
	parent, err := rec.ParentFolderID()
	if err != nil {
		return false
	}
	return parent == f.SentFolderID
}

// Task formats a task record.
func Task(rec backend.TaskRecord) (*mail.Task, error) {
	if rec.EntryID() == "" {
		return nil, ErrMissingID
	}
	t := rec.Task()
	return &t, nil
}

// Appointment formats a calendar record.
func Appointment(rec backend.AppointmentRecord) (*mail.Appointment, error) {
	if rec.EntryID() == "" {
		return nil, ErrMissingID
	}
	a := rec.Appointment()
	return &a, nil
}
