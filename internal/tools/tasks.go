package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deskmail/deskmail/internal/mail"
	"github.com/deskmail/deskmail/internal/mailbox"
)

const (
	longDateLayout = "Monday, January 02, 2006"
	clockLayout    = "3:04 PM"
	dueLayout      = "2006-01-02"
)

type taskJSON struct {
	Subject     string `json:"subject"`
	DueDate     string `json:"due_date"`
	ReminderSet bool   `json:"reminder_set"`
}

func dueDate(t *mail.Task) string {
	if t.DueDate == nil {
		return "No due date"
	}
	return t.DueDate.Format(dueLayout)
}

// NewCreateTaskTool adds a task.
func NewCreateTaskTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "create_task",
		description: "Creates a task. The due date may be natural language such as 'tomorrow' or 'next Friday', or a date like 2024-10-31.",
		parameters: object(map[string]interface{}{
			"subject":           stringParam("Subject of the task"),
			"due_date_str":      stringParam("When the task is due"),
			"reminder_time_str": stringParam("Optional reminder time on the due date, e.g. '9:00 AM'"),
		}, "subject", "due_date_str"),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Subject  string `json:"subject"`
				Due      string `json:"due_date_str"`
				Reminder string `json:"reminder_time_str"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.CreateTask(ctx, in.Subject, in.Due, in.Reminder)
			if err != nil {
				return "", err
			}
			msg := fmt.Sprintf("Success: Task '%s' created, due on %s.", res.Subject, res.Due.Format(longDateLayout))
			if res.ReminderAt != nil {
				msg += fmt.Sprintf(" A reminder is set for %s.", res.ReminderAt.Format(clockLayout))
			}
			return msg, nil
		},
	}
}

// NewGetTasksTool lists incomplete tasks.
func NewGetTasksTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "get_tasks",
		description: "Lists incomplete tasks due 'today' (including overdue), 'tomorrow', 'this week' or 'all'.",
		parameters: object(map[string]interface{}{
			"due": map[string]interface{}{
				"type":        "string",
				"enum":        mailbox.DueFilters,
				"default":     "today",
				"description": "Which tasks to return",
			},
		}),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			in := struct {
				Due string `json:"due"`
			}{Due: "today"}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.ListTasks(ctx, in.Due)
			if err != nil {
				return "", err
			}
			if len(res.Tasks) == 0 {
				return indent(map[string]string{
					"message": fmt.Sprintf("No incomplete tasks found for the '%s' category.", res.Due),
				})
			}
			out := make([]taskJSON, 0, len(res.Tasks))
			for _, t := range res.Tasks {
				out = append(out, taskJSON{Subject: t.Subject, DueDate: dueDate(t), ReminderSet: t.ReminderSet})
			}
			return indent(out)
		},
	}
}

// NewMarkTaskCompleteTool completes a task by subject.
func NewMarkTaskCompleteTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "mark_task_complete",
		description: "Marks the first incomplete task with exactly this subject as complete.",
		parameters: object(map[string]interface{}{
			"task_subject": stringParam("Exact subject of the task"),
		}, "task_subject"),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Subject string `json:"task_subject"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			if _, err := svc.CompleteTask(ctx, strings.TrimSpace(in.Subject)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Success: Task '%s' has been marked as complete.", strings.TrimSpace(in.Subject)), nil
		},
	}
}
