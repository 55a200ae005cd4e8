package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/mail"
	"github.com/deskmail/deskmail/internal/mailbox"
	"github.com/deskmail/deskmail/internal/session"
	"github.com/deskmail/deskmail/internal/storage"
)

var now = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, user backend.Identity) (*Registry, *backend.Memory) {
	t.Helper()
	mem := backend.NewMemory(user)
	mem.Now = func() time.Time { return now }
	inbox := mem.Folder(backend.FolderInbox)
	mem.AddFolder(inbox, "Projects")
	mem.AddMessage(inbox, &backend.MessageData{
		Conversation: "c1",
		SubjectText:  "Budget",
		From:         mail.Address{Name: "Dana Boss", Address: "dana@example.com"},
		Received:     now.Add(-time.Hour),
		To:           []mail.Address{{Name: "Me", Address: "me@example.com"}},
		BodyText:     "Numbers attached?",
		Attachments:  []string{"a.pdf"},
		IsUnread:     true,
		Priority:     mail.ImportanceNormal,
	})
	mem.AddTask(mail.Task{Subject: "Pay invoice", DueDate: &now, ReminderSet: true})
	mem.AddAppointment(mail.Appointment{
		Subject: "Standup",
		Start:   time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 3, 13, 9, 30, 0, 0, time.UTC),
	})

	svc := mailbox.New(mem, session.New(), mailbox.WithClock(func() time.Time { return now }))
	r := NewRegistry(zerolog.Nop())
	RegisterMailbox(r, svc)
	return r, mem
}

func call(r *Registry, name, args string) string {
	return r.Call(context.Background(), name, json.RawMessage(args))
}

var me = backend.Identity{Address: "me@example.com", ManagerName: "Dana Boss"}

func TestRegistryListsEveryTool(t *testing.T) {
	r, _ := newRegistry(t, me)
	defs := r.ToOpenAITools(nil)
	if len(defs) != 15 {
		t.Fatalf("tools = %d, want 15", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Function.Name >= defs[i].Function.Name {
			t.Errorf("tools not sorted: %s before %s", defs[i-1].Function.Name, defs[i].Function.Name)
		}
	}
	for _, d := range defs {
		params, ok := d.Function.Parameters.(map[string]interface{})
		if !ok || params["type"] != "object" {
			t.Errorf("%s: parameters = %v", d.Function.Name, d.Function.Parameters)
		}
	}
}

func TestErrorsAreStrings(t *testing.T) {
	r, mem := newRegistry(t, me)
	tests := []struct {
		name string
		tool string
		args string
		want string
	}{
		{"lookback", "list_recent_emails", `{"days": 400}`, "Error: 'days' must be an integer between 1 and 180"},
		{"unknown tool", "delete_everything", `{}`, "Error: unknown tool: delete_everything"},
		{"bad json", "list_recent_emails", `{"days": "seven"}`, "Error: invalid arguments"},
		{"fractional days", "list_recent_emails", `{"days": 2.5}`, "Error: invalid arguments"},
		{"empty cache", "move_email_by_number", `{"email_number": 3, "destination_folder_name": "Archive"}`, "Error: No emails have been listed yet."},
		{"missing folder", "count_unread_emails", `{"folder_name": "Nope"}`, "Error: Folder 'Nope' not found"},
		{"bad due", "get_tasks", `{"due": "later"}`, "Error: Invalid 'due' parameter."},
		{"missing task", "mark_task_complete", `{"task_subject": "Nothing"}`, "Error: No active task with the subject 'Nothing' was found."},
		{"briefing range", "generate_morning_briefing", `{"days_to_scan": 15}`, "Error: 'days_to_scan' must be an integer between 1 and 14."},
		{"scan range", "prioritize_inbox", `{"max_emails_to_scan": 60}`, "Error: 'max_emails_to_scan' must be between 5 and 50."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := call(r, tt.tool, tt.args)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("got %q, want prefix %q", got, tt.want)
			}
		})
	}
	if mem.Mutations() != 0 {
		t.Errorf("mutations = %d", mem.Mutations())
	}
}

func TestListAndDetail(t *testing.T) {
	r, _ := newRegistry(t, me)

	got := call(r, "list_recent_emails", "")
	for _, want := range []string{
		"Found 1 emails in Inbox from the last 7 days:\n\n",
		"Email #1\nSubject: Budget\nFrom: Dana Boss <dana@example.com>\nReceived: 2024-03-13\nRead Status: Unread\nHas Attachments: Yes\n",
		"use the get_email_by_number tool",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("listing missing %q:\n%s", want, got)
		}
	}

	got = call(r, "get_email_by_number", `{"email_number": 1}`)
	for _, want := range []string{
		"Email #1 Details:",
		"Recipients: Me <me@example.com>",
		"Attachments:\n  - a.pdf\n",
		"\nBody:\nNumbers attached?",
		"reply_to_email_by_number",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("detail missing %q:\n%s", want, got)
		}
	}

	got = call(r, "search_emails", `{"search_term": "zzz"}`)
	if got != "No emails matching 'zzz' found in Inbox from the last 7 days." {
		t.Errorf("empty search = %q", got)
	}
}

func TestMutatingTools(t *testing.T) {
	r, mem := newRegistry(t, me)
	call(r, "list_recent_emails", `{"days": 3}`)

	if got := call(r, "reply_to_email_by_number", `{"email_number": 1, "reply_text": "Yes."}`); got != "Reply sent successfully to: Dana Boss <dana@example.com>" {
		t.Errorf("reply = %q", got)
	}
	if got := call(r, "move_email_by_number", `{"email_number": 1, "destination_folder_name": "Projects"}`); got != "Success: Email #1, 'Budget', has been moved to the 'Projects' folder." {
		t.Errorf("move = %q", got)
	}
	if got := call(r, "compose_email", `{"recipient_email": "kim@example.com", "subject": "Hi", "body": "Hello"}`); got != "Email sent successfully to: kim@example.com" {
		t.Errorf("compose = %q", got)
	}
	if got := call(r, "mark_task_complete", `{"task_subject": "Pay invoice"}`); got != "Success: Task 'Pay invoice' has been marked as complete." {
		t.Errorf("complete = %q", got)
	}
	if mem.Mutations() != 4 {
		t.Errorf("mutations = %d", mem.Mutations())
	}
}

func TestTaskTools(t *testing.T) {
	r, _ := newRegistry(t, me)

	got := call(r, "create_task", `{"subject": "Call bank", "due_date_str": "tomorrow", "reminder_time_str": "9:30 AM"}`)
	if got != "Success: Task 'Call bank' created, due on Thursday, March 14, 2024. A reminder is set for 9:30 AM." {
		t.Errorf("create = %q", got)
	}

	var tasks []taskJSON
	if err := json.Unmarshal([]byte(call(r, "get_tasks", "")), &tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Subject != "Pay invoice" || tasks[0].DueDate != "2024-03-13" || !tasks[0].ReminderSet {
		t.Errorf("today = %+v", tasks)
	}

	got = call(r, "get_tasks", `{"due": "tomorrow"}`)
	if !strings.Contains(got, `"subject": "Call bank"`) {
		t.Errorf("tomorrow = %s", got)
	}

	call(r, "mark_task_complete", `{"task_subject": "Pay invoice"}`)
	got = call(r, "get_tasks", `{"due": "today"}`)
	if got != "{\n  \"message\": \"No incomplete tasks found for the 'today' category.\"\n}" {
		t.Errorf("empty = %q", got)
	}
}

func TestBriefingJSON(t *testing.T) {
	r, _ := newRegistry(t, backend.Identity{Address: "me@example.com"})

	var out struct {
		Metadata  briefingMetadata `json:"briefing_metadata"`
		Reminders []reminderJSON   `json:"todays_reminders"`
		Threads   []struct {
			Ordinal   int    `json:"email_number"`
			Subject   string `json:"subject"`
			Timestamp string `json:"last_email_timestamp"`
			Unread    bool   `json:"is_last_email_unread"`
		} `json:"conversation_threads"`
	}
	got := call(r, "generate_morning_briefing", "")
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("%v\n%s", err, got)
	}
	if out.Metadata.Date != "Wednesday, March 13, 2024" || out.Metadata.ManagerName != "Not found" {
		t.Errorf("metadata = %+v", out.Metadata)
	}
	if len(out.Reminders) != 1 || out.Reminders[0].DueDate != "2024-03-13" {
		t.Errorf("reminders = %+v", out.Reminders)
	}
	if !strings.Contains(got, `"start": "9:00 AM"`) || !strings.Contains(got, `"location": "Not specified"`) {
		t.Errorf("calendar not rendered:\n%s", got)
	}
	if len(out.Threads) != 1 || out.Threads[0].Ordinal != 1 || !out.Threads[0].Unread {
		t.Errorf("threads = %+v", out.Threads)
	}
	if len(out.Threads) == 1 && out.Threads[0].Timestamp != "2024-03-13 09:00" {
		t.Errorf("last_email_timestamp = %q", out.Threads[0].Timestamp)
	}
	if !strings.HasPrefix(got, "{\n  \"") {
		t.Errorf("expected two-space indentation")
	}
}

func TestBriefingWithoutAddress(t *testing.T) {
	r, _ := newRegistry(t, backend.Identity{})
	got := call(r, "generate_morning_briefing", "")
	if got != "Error: Could not determine your email address. Cannot analyze conversations." {
		t.Errorf("got %q", got)
	}
}

func TestAnalysisTools(t *testing.T) {
	r, _ := newRegistry(t, me)

	var entries []map[string]interface{}
	if err := json.Unmarshal([]byte(call(r, "prioritize_inbox", "")), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0]["is_from_manager"] != true || entries[0]["body_snippet"] != "Numbers attached?..." {
		t.Errorf("entries = %v", entries)
	}

	var classified map[string]json.RawMessage
	if err := json.Unmarshal([]byte(call(r, "classify_actionable_emails", "")), &classified); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"unread_priority", "awaiting_reply", "pending_follow_up", "analysis_metadata"} {
		if _, ok := classified[key]; !ok {
			t.Errorf("classification missing %s", key)
		}
	}
	if !strings.Contains(string(classified["unread_priority"]), `"reason": "manager"`) {
		t.Errorf("unread_priority = %s", classified["unread_priority"])
	}

	var load loadJSON
	if err := json.Unmarshal([]byte(call(r, "inbox_load_estimator", "")), &load); err != nil {
		t.Fatal(err)
	}
	if load.Metadata.ScanPeriodDays != 30 || load.Metrics.ActiveConversations != 1 || load.Metrics.LoadScore != 0 {
		t.Errorf("load = %+v", load)
	}
}

func TestPrioritizeEmpty(t *testing.T) {
	mem := backend.NewMemory(me)
	svc := mailbox.New(mem, session.New(), mailbox.WithClock(func() time.Time { return now }))
	r := NewRegistry(zerolog.Nop())
	RegisterMailbox(r, svc)

	got := call(r, "prioritize_inbox", `{"days": 1}`)
	want := "{\n  \"message\": \"No emails found in the Inbox from the last 1 day.\",\n  \"status\": \"success\"\n}"
	if got != want {
		t.Errorf("got %q", got)
	}
}

func TestListFolders(t *testing.T) {
	r, _ := newRegistry(t, me)
	got := call(r, "list_folders", "")
	if !strings.HasPrefix(got, "Available mail folders:\n\n- Mailbox\n  - Inbox\n    - Projects\n  - Sent Items") {
		t.Errorf("folders =\n%s", got)
	}
}

func TestAuditLog(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	r, _ := newRegistry(t, me)
	r.SetAudit(store, "session-1")

	call(r, "count_unread_emails", "")
	call(r, "list_recent_emails", `{"days": 0}`)

	calls, err := store.GetToolCalls(context.Background(), "session-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %d", len(calls))
	}
	if calls[0].ToolName != "count_unread_emails" || calls[0].Result != "You have 1 unread emails in your Inbox." || calls[0].Error != "" {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].Error == "" || !strings.HasPrefix(calls[1].Result, "Error: ") {
		t.Errorf("second call = %+v", calls[1])
	}
}
