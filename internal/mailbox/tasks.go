package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/formatter"
	"github.com/deskmail/deskmail/internal/mail"
)

// DueFilters lists the accepted values of the ListTasks due argument.
var DueFilters = []string{"today", "tomorrow", "this week", "all"}

// CreatedTask reports the stored task as the backend understood it.
type CreatedTask struct {
	Subject    string
	Due        time.Time
	ReminderAt *time.Time
}

// CreateTask parses the due date and optional reminder time, then creates
// the task.
func (s *Service) CreateTask(ctx context.Context, subject, dueText, reminderText string) (*CreatedTask, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, invalid("subject", "Please provide a task subject")
	}
	if strings.TrimSpace(dueText) == "" {
		return nil, invalid("due_date", "Please provide a due date")
	}
	now := s.now()
	due, err := parseDue(dueText, now)
	if err != nil {
		return nil, invalid("due_date", "Could not understand the due date '%s'.", dueText)
	}

	draft := mail.TaskDraft{Subject: subject, DueDate: due}
	if strings.TrimSpace(reminderText) != "" {
		at, err := parseReminder(reminderText, due)
		if err != nil {
			return nil, invalid("reminder_time", "Could not understand the reminder time '%s'.", reminderText)
		}
		draft.ReminderAt = &at
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	rec, err := sess.CreateTask(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	t := rec.Task()
	s.logger.Info().Str("subject", t.Subject).Time("due", due).Msg("Task created")

	out := &CreatedTask{Subject: t.Subject, Due: due, ReminderAt: t.ReminderAt}
	if t.DueDate != nil {
		out.Due = *t.DueDate
	}
	return out, nil
}

// TaskList is the result of ListTasks.
type TaskList struct {
	Due   string
	Tasks []*mail.Task
}

// ListTasks returns incomplete tasks matching the due filter, soonest first.
// "today" includes overdue tasks.
func (s *Service) ListTasks(ctx context.Context, due string) (*TaskList, error) {
	due = strings.ToLower(strings.TrimSpace(due))
	window, ok := dueWindow(due, s.now())
	if !ok {
		return nil, invalid("due", "Invalid 'due' parameter. Must be one of 'today', 'tomorrow', 'this week', or 'all'.")
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	tasks, err := s.tasks(ctx, sess, backend.Restriction{
		IncompleteOnly: true,
		DueAfter:       window.after,
		DueBefore:      window.before,
		SortBy:         backend.SortDue,
	})
	if err != nil {
		return nil, err
	}
	return &TaskList{Due: due, Tasks: tasks}, nil
}

func (s *Service) tasks(ctx context.Context, sess backend.Session, r backend.Restriction) ([]*mail.Task, error) {
	folder, err := sess.DefaultFolder(ctx, backend.FolderTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks folder: %w", err)
	}
	recs, err := folder.Items(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	var out []*mail.Task
	for _, rec := range recs {
		tr, ok := rec.(backend.TaskRecord)
		if !ok {
			continue
		}
		t, err := formatter.Task(tr)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Skipping unreadable task")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// CompleteTask marks the first incomplete task whose subject equals subject.
func (s *Service) CompleteTask(ctx context.Context, subject string) (*mail.Task, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, invalid("task_subject", "Please provide the subject of the task")
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	matches, err := s.tasks(ctx, sess, backend.Restriction{Subject: subject, IncompleteOnly: true})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, notFound(backend.ErrNotFound, "No active task with the subject '%s' was found.", subject)
	}
	if len(matches) > 1 {
		s.logger.Warn().Int("count", len(matches)).Str("subject", subject).Msg("Found several active tasks with the same subject, completing the first one")
	}

	task := matches[0]
	if err := sess.MarkComplete(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("failed to mark task complete: %w", err)
	}
	task.Complete = true
	s.logger.Info().Str("subject", subject).Msg("Task completed")
	return task, nil
}
