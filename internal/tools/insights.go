package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deskmail/deskmail/internal/analysis"
	"github.com/deskmail/deskmail/internal/mailbox"
)

const threadLayout = "2006-01-02 15:04"

const (
	briefingInstructions = "Review reminders (which are tasks), calendar, and conversation_threads to create a prioritized morning briefing for the user."
	classifyInstructions = "Summarise each category for the user and suggest the next action for every email number."
	loadInstructions     = "Analyze these metrics to assess the user's inbox load and provide a qualitative summary and recommendations."
)

type briefingJSON struct {
	Metadata     briefingMetadata  `json:"briefing_metadata"`
	Reminders    []reminderJSON    `json:"todays_reminders"`
	Calendar     []appointmentJSON `json:"todays_calendar"`
	Threads      []threadJSON      `json:"conversation_threads"`
	Instructions string            `json:"analysis_instructions"`
}

type briefingMetadata struct {
	Date        string `json:"date"`
	UserEmail   string `json:"user_email"`
	ManagerName string `json:"manager_name"`
}

type threadJSON struct {
	Ordinal       int    `json:"email_number"`
	Subject       string `json:"subject"`
	LastFrom      string `json:"last_email_from"`
	LastTimestamp string `json:"last_email_timestamp"`
	LastUnread    bool   `json:"is_last_email_unread"`
	FromManager   bool   `json:"is_from_manager"`
	HasQuestion   bool   `json:"contains_question_in_body"`
	DaysSinceLast int    `json:"days_since_last_email"`
	FollowUp      string `json:"follow_up_suggestion,omitempty"`
}

func newThreadJSON(st analysis.ThreadStatus) threadJSON {
	return threadJSON{
		Ordinal:       st.Ordinal,
		Subject:       st.Subject,
		LastFrom:      st.LastFrom,
		LastTimestamp: st.LastTimestamp.Format(threadLayout),
		LastUnread:    st.LastUnread,
		FromManager:   st.FromManager,
		HasQuestion:   st.HasQuestion,
		DaysSinceLast: st.DaysSinceLast,
		FollowUp:      st.FollowUp,
	}
}

type reminderJSON struct {
	Subject string `json:"subject"`
	DueDate string `json:"due_date"`
}

type appointmentJSON struct {
	Subject  string `json:"subject"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location"`
	AllDay   bool   `json:"all_day"`
}

type scanMetadata struct {
	ScanPeriodDays int    `json:"scan_period_days"`
	Timestamp      string `json:"timestamp"`
}

// NewBriefingTool gathers the data for a morning briefing.
func NewBriefingTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name: "generate_morning_briefing",
		description: "Gathers today's calendar, tasks due today or overdue, and the status of every recent conversation " +
			"as JSON. Analyse it to build a prioritised morning briefing.",
		parameters: object(map[string]interface{}{
			"days_to_scan":   intParam(fmt.Sprintf("Days of email to scan (max %d)", mailbox.MaxBriefingDays), mailbox.DefaultBriefingDays),
			"follow_up_days": intParam("Days after which my unanswered email deserves a follow-up", mailbox.DefaultFollowUpDays),
		}),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Days     *int `json:"days_to_scan"`
				FollowUp *int `json:"follow_up_days"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			b, err := svc.Briefing(ctx, intOr(in.Days, mailbox.DefaultBriefingDays), intOr(in.FollowUp, mailbox.DefaultFollowUpDays))
			if err != nil {
				return "", err
			}

			out := briefingJSON{
				Metadata: briefingMetadata{
					Date:        b.Date.Format(longDateLayout),
					UserEmail:   b.UserAddress,
					ManagerName: b.ManagerName,
				},
				Reminders:    make([]reminderJSON, 0, len(b.Reminders)),
				Calendar:     make([]appointmentJSON, 0, len(b.Calendar)),
				Threads:      make([]threadJSON, 0, len(b.Threads)),
				Instructions: briefingInstructions,
			}
			if out.Metadata.ManagerName == "" {
				out.Metadata.ManagerName = "Not found"
			}
			for _, st := range b.Threads {
				out.Threads = append(out.Threads, newThreadJSON(st))
			}
			for _, t := range b.Reminders {
				out.Reminders = append(out.Reminders, reminderJSON{Subject: t.Subject, DueDate: dueDate(t)})
			}
			for _, a := range b.Calendar {
				loc := a.Location
				if loc == "" {
					loc = "Not specified"
				}
				out.Calendar = append(out.Calendar, appointmentJSON{
					Subject:  a.Subject,
					Start:    a.Start.Format(clockLayout),
					End:      a.End.Format(clockLayout),
					Location: loc,
					AllDay:   a.AllDay,
				})
			}
			return indent(out)
		},
	}
}

// NewPrioritizeTool returns feature rows for AI ranking of the inbox.
func NewPrioritizeTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name: "prioritize_inbox",
		description: "Returns recent inbox emails (sender, subject, body snippet, importance) as JSON so you can decide " +
			"which matter most. The email_number works with the other by-number tools.",
		parameters: object(map[string]interface{}{
			"days":               intParam(fmt.Sprintf("Days to look back (max %d)", mailbox.MaxPrioritizeDays), mailbox.DefaultPrioritizeDays),
			"max_emails_to_scan": intParam(fmt.Sprintf("Emails to return (%d-%d)", mailbox.MinPrioritizeScan, mailbox.MaxPrioritizeScan), mailbox.DefaultPrioritizeScan),
		}),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Days *int `json:"days"`
				Max  *int `json:"max_emails_to_scan"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.Prioritize(ctx, intOr(in.Days, mailbox.DefaultPrioritizeDays), intOr(in.Max, mailbox.DefaultPrioritizeScan))
			if err != nil {
				return "", err
			}
			if len(res.Entries) == 0 {
				unit := "days"
				if res.Days == 1 {
					unit = "day"
				}
				return indent(map[string]string{
					"status":  "success",
					"message": fmt.Sprintf("No emails found in the Inbox from the last %d %s.", res.Days, unit),
				})
			}
			return indent(res.Entries)
		},
	}
}

type actionJSON struct {
	Ordinal    int        `json:"email_number"`
	Subject    string     `json:"subject"`
	Sender     string     `json:"sender"`
	ReceivedAt *time.Time `json:"received_time,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// NewClassifyTool sorts recent conversations into actionable categories.
func NewClassifyTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name: "classify_actionable_emails",
		description: "Groups recent conversations into unread_priority, awaiting_reply and pending_follow_up " +
			"based on their latest email.",
		parameters: object(map[string]interface{}{
			"days_to_scan": intParam(fmt.Sprintf("Days to scan (max %d)", mailbox.MaxActionableDays), mailbox.DefaultActionableDays),
		}),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Days *int `json:"days_to_scan"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.ClassifyActionable(ctx, intOr(in.Days, mailbox.DefaultActionableDays))
			if err != nil {
				return "", err
			}

			out := map[string]interface{}{
				"analysis_metadata": scanMetadata{ScanPeriodDays: res.Days, Timestamp: res.At.Format(time.RFC3339)},
				"ai_instructions":   classifyInstructions,
			}
			for _, c := range []analysis.Category{
				analysis.CategoryUnreadPriority,
				analysis.CategoryAwaitingReply,
				analysis.CategoryPendingFollowUp,
			} {
				items := make([]actionJSON, 0)
				for _, it := range res.ByCategory(c) {
					items = append(items, actionJSON{
						Ordinal:    it.Ordinal,
						Subject:    it.Message.Subject,
						Sender:     it.Message.SenderName,
						ReceivedAt: it.Message.ReceivedAt,
						Reason:     string(it.Reason),
					})
				}
				out[string(c)] = items
			}
			return indent(out)
		},
	}
}

type loadJSON struct {
	Metadata     scanMetadata `json:"analysis_metadata"`
	Metrics      loadMetrics  `json:"inbox_metrics"`
	Instructions string       `json:"ai_instructions"`
}

type loadMetrics struct {
	UnreadUrgent        int     `json:"unread_urgent_count"`
	FlaggedThreads      int     `json:"flagged_threads_count"`
	AverageDelayHours   float64 `json:"average_response_delay_hours"`
	ActiveConversations int     `json:"total_active_conversations"`
	LoadScore           float64 `json:"load_score"`
}

// NewLoadTool reports inbox load metrics.
func NewLoadTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name: "inbox_load_estimator",
		description: "Reports unread urgent threads, flagged threads, average reply delay and a 0-1 load score " +
			"for recent mail. Interpret them to describe how busy the inbox is.",
		parameters: object(map[string]interface{}{
			"days_to_scan": intParam(fmt.Sprintf("Days to scan (max %d)", mailbox.MaxActionableDays), mailbox.DefaultLoadDays),
		}),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Days *int `json:"days_to_scan"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.EstimateLoad(ctx, intOr(in.Days, mailbox.DefaultLoadDays))
			if err != nil {
				return "", err
			}
			m := res.Metrics
			return indent(loadJSON{
				Metadata: scanMetadata{ScanPeriodDays: res.Days, Timestamp: res.At.Format(time.RFC3339)},
				Metrics: loadMetrics{
					UnreadUrgent:        m.UnreadUrgent,
					FlaggedThreads:      m.FlaggedThreads,
					AverageDelayHours:   analysis.Round2(m.AverageDelayHours()),
					ActiveConversations: m.ActiveConversations,
					LoadScore:           m.LoadScore(),
				},
				Instructions: loadInstructions,
			})
		},
	}
}
