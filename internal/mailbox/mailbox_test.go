package mailbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/deskmail/deskmail/internal/analysis"
	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/mail"
	"github.com/deskmail/deskmail/internal/session"
)

// Wednesday.
var now = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

func day(offset int) *time.Time {
	t := startOfDay(now).AddDate(0, 0, offset)
	return &t
}

type countingBackend struct {
	backend.Backend
	connects int
}

func (c *countingBackend) Connect(ctx context.Context) (backend.Session, error) {
	c.connects++
	return c.Backend.Connect(ctx)
}

type fixture struct {
	mem      *backend.Memory
	counting *countingBackend
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := backend.NewMemory(backend.Identity{Address: "me@example.com", ManagerName: "Dana Boss"})
	mem.Now = func() time.Time { return now }

	inbox := mem.Folder(backend.FolderInbox)
	mem.AddFolder(inbox, "Projects")

	mem.AddMessage(inbox, &backend.MessageData{
		Conversation: "c1",
		SubjectText:  "Quarterly report",
		From:         mail.Address{Name: "Dana Boss", Address: "dana@example.com"},
		Received:     now.Add(-2 * time.Hour),
		BodyText:     "Can you send the numbers?",
		IsUnread:     true,
		Priority:     mail.ImportanceHigh,
	})
	mem.AddMessage(inbox, &backend.MessageData{
		Conversation: "c2",
		SubjectText:  "Lunch",
		From:         mail.Address{Name: "Sam", Address: "sam@example.com"},
		Received:     now.Add(-26 * time.Hour),
		BodyText:     "See you there.",
		Attachments:  []string{"menu.pdf"},
		Priority:     mail.ImportanceNormal,
	})
	mem.AddMessage(inbox, &backend.MessageData{
		Conversation: "c3",
		SubjectText:  "URGENT: contract",
		From:         mail.Address{Name: "Lee", Address: "lee@example.com"},
		Received:     now.AddDate(0, 0, -10),
		BodyText:     "Signature needed.",
		IsUnread:     true,
		Flag:         mail.FlagFlagged,
		Priority:     mail.ImportanceNormal,
	})
	mem.AddMessage(mem.Folder(backend.FolderSent), &backend.MessageData{
		Conversation: "c4",
		SubjectText:  "Proposal",
		From:         mail.Address{Address: "me@example.com"},
		Sent:         now.Add(-72 * time.Hour),
		Received:     now.Add(-72 * time.Hour),
		To:           []mail.Address{{Name: "Kim", Address: "kim@example.com"}},
		BodyText:     "Any thoughts?",
		Priority:     mail.ImportanceNormal,
	})

	mem.AddTask(mail.Task{Subject: "Overdue report", DueDate: day(-2)})
	mem.AddTask(mail.Task{Subject: "Pay invoice", DueDate: day(0), ReminderSet: true})
	mem.AddTask(mail.Task{Subject: "Book travel", DueDate: day(1)})
	mem.AddTask(mail.Task{Subject: "Plan offsite", DueDate: day(7)})
	mem.AddTask(mail.Task{Subject: "Filed taxes", DueDate: day(0), Complete: true})
	mem.AddTask(mail.Task{Subject: "Someday"})

	mem.AddAppointment(mail.Appointment{
		Subject: "Standup",
		Start:   startOfDay(now).Add(9 * time.Hour),
		End:     startOfDay(now).Add(9*time.Hour + 15*time.Minute),
	})
	mem.AddAppointment(mail.Appointment{
		Subject: "Tomorrow's review",
		Start:   startOfDay(now).AddDate(0, 0, 1).Add(14 * time.Hour),
		End:     startOfDay(now).AddDate(0, 0, 1).Add(15 * time.Hour),
	})

	counting := &countingBackend{Backend: mem}
	svc := New(counting, session.New(), WithClock(func() time.Time { return now }))
	return &fixture{mem: mem, counting: counting, svc: svc}
}

func subjects(msgs []*mail.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Subject
	}
	return out
}

func TestValidationBeforeBackend(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(s *Service) error
	}{
		{"list 400 days", func(s *Service) error { _, err := s.ListRecent(ctx, 400, ""); return err }},
		{"list 0 days", func(s *Service) error { _, err := s.ListRecent(ctx, 0, ""); return err }},
		{"search empty term", func(s *Service) error { _, err := s.Search(ctx, "  ", 7, ""); return err }},
		{"prioritize 32 days", func(s *Service) error { _, err := s.Prioritize(ctx, 32, 25); return err }},
		{"prioritize scan 4", func(s *Service) error { _, err := s.Prioritize(ctx, 1, 4); return err }},
		{"prioritize scan 51", func(s *Service) error { _, err := s.Prioritize(ctx, 1, 51); return err }},
		{"briefing 15 days", func(s *Service) error { _, err := s.Briefing(ctx, 15, 2); return err }},
		{"briefing follow-up 0", func(s *Service) error { _, err := s.Briefing(ctx, 3, 0); return err }},
		{"classify 61 days", func(s *Service) error { _, err := s.ClassifyActionable(ctx, 61); return err }},
		{"load 0 days", func(s *Service) error { _, err := s.EstimateLoad(ctx, 0); return err }},
		{"tasks bad filter", func(s *Service) error { _, err := s.ListTasks(ctx, "soon"); return err }},
		{"move without folder", func(s *Service) error { _, err := s.Move(ctx, 1, ""); return err }},
		{"compose without recipient", func(s *Service) error { _, err := s.Compose(ctx, "", "Hi", "Body", ""); return err }},
		{"create task bad date", func(s *Service) error { _, err := s.CreateTask(ctx, "Call", "gibberish", ""); return err }},
		{"create task bad reminder", func(s *Service) error { _, err := s.CreateTask(ctx, "Call", "tomorrow", "later"); return err }},
		{"complete empty subject", func(s *Service) error { _, err := s.CompleteTask(ctx, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := tt.call(f.svc)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if f.counting.connects != 0 {
				t.Errorf("backend contacted %d times before validation", f.counting.connects)
			}
		})
	}
}

func TestListRecentRejectsLongLookback(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListRecent(context.Background(), 400, "")
	if err == nil || err.Error() != "'days' must be an integer between 1 and 180" {
		t.Fatalf("error = %v", err)
	}
}

func TestListRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ListRecent(ctx, 7, "")
	if err != nil {
		t.Fatal(err)
	}
	got := subjects(res.Messages)
	if strings.Join(got, "|") != "Quarterly report|Lunch" {
		t.Fatalf("subjects = %v", got)
	}
	if res.FolderLabel() != "Inbox" {
		t.Errorf("FolderLabel() = %q", res.FolderLabel())
	}
	if f.svc.Cache().Len() != 2 {
		t.Errorf("cache len = %d", f.svc.Cache().Len())
	}

	d, err := f.svc.Detail(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Attachments) != 1 || d.Attachments[0] != "menu.pdf" {
		t.Errorf("attachments = %v", d.Attachments)
	}

	if _, err := f.svc.Detail(ctx, 9); err == nil || !strings.Contains(err.Error(), "Email #9 not found") {
		t.Errorf("Detail(9) error = %v", err)
	}
}

func TestDetailRereadsItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := f.mem.AddMessage(f.mem.Folder(backend.FolderInbox), &backend.MessageData{
		Conversation: "c5",
		SubjectText:  "Badge renewal",
		From:         mail.Address{Name: "Facilities", Address: "facilities@example.com"},
		Received:     now.Add(-time.Hour),
		IsUnread:     true,
	})

	if _, err := f.svc.ListRecent(ctx, 7, ""); err != nil {
		t.Fatal(err)
	}
	data.IsUnread = false
	data.SubjectText = "Badge renewal (done)"

	d, err := f.svc.Detail(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if d.Message.Unread || d.Message.Subject != "Badge renewal (done)" {
		t.Errorf("detail = %+v, want the current state of the item", d.Message)
	}
	if d.Message.Importance.String() != "Normal" {
		t.Errorf("importance = %v", d.Message.Importance)
	}
}

func TestSearchTerms(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Search(context.Background(), "lunch OR contract", 30, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(subjects(res.Messages), "|"); got != "Lunch|URGENT: contract" {
		t.Errorf("subjects = %s", got)
	}

	if got := SplitTerms(" a OR b OR  OR c"); strings.Join(got, ",") != "a,b,c" {
		t.Errorf("SplitTerms() = %v", got)
	}
}

func TestUnknownFolder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListRecent(context.Background(), 7, "Nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Message != "Folder 'Nope' not found" {
		t.Fatalf("error = %v", err)
	}
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("error should wrap ErrNotFound")
	}
}

func TestCountUnreadKeepsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.ListRecent(ctx, 7, ""); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.CountUnread(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || res.Folder != "Inbox" {
		t.Errorf("CountUnread() = %+v", res)
	}
	if f.svc.Cache().Len() != 2 {
		t.Errorf("cache was touched")
	}
}

func TestMoveOnEmptyCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Move(context.Background(), 3, "Archive")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if !strings.HasPrefix(nf.Message, "No emails have been listed yet") {
		t.Errorf("message = %q", nf.Message)
	}
	if f.mem.Mutations() != 0 {
		t.Errorf("mutations = %d", f.mem.Mutations())
	}
}

func TestMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.ListRecent(ctx, 7, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Move(ctx, 1, "Nowhere"); err == nil || !strings.Contains(err.Error(), "Destination folder 'Nowhere' could not be found") {
		t.Fatalf("error = %v", err)
	}

	res, err := f.svc.Move(ctx, 1, "projects")
	if err != nil {
		t.Fatal(err)
	}
	if res.Subject != "Quarterly report" {
		t.Errorf("subject = %q", res.Subject)
	}
	if _, err := f.svc.Cache().Get(1); err == nil {
		t.Errorf("ordinal 1 still cached after move")
	}
	if _, err := f.svc.Cache().Get(2); err != nil {
		t.Errorf("ordinal 2 dropped: %v", err)
	}
	if f.mem.Mutations() != 1 {
		t.Errorf("mutations = %d", f.mem.Mutations())
	}

	listed, err := f.svc.ListRecent(ctx, 7, "Projects")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed.Messages) != 1 || listed.FolderLabel() != "'Projects'" {
		t.Errorf("Projects listing = %v", subjects(listed.Messages))
	}
}

func TestReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.ListRecent(ctx, 7, ""); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Reply(ctx, 1, "Sending now.")
	if err != nil {
		t.Fatal(err)
	}
	if res.To.Address != "dana@example.com" || res.Subject != "Re: Quarterly report" {
		t.Errorf("Reply() = %+v", res)
	}

	out := f.mem.Outbox()
	if len(out) != 1 {
		t.Fatalf("outbox = %d", len(out))
	}
	if out[0].InReplyTo != "c1" || out[0].From.Address != "me@example.com" {
		t.Errorf("outgoing = %+v", out[0])
	}
}

func TestReplyToSentItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.ListRecent(ctx, 7, "Sent Items"); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Reply(ctx, 1, "Ping")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Message != "Email #1 is a sent item. You cannot reply to it." {
		t.Fatalf("error = %v", err)
	}
	if f.mem.Mutations() != 0 {
		t.Errorf("mutations = %d", f.mem.Mutations())
	}
}

func TestCompose(t *testing.T) {
	f := newFixture(t)
	f.svc = New(f.mem, session.New(), WithClock(func() time.Time { return now }),
		WithFrom(mail.Address{Name: "Me", Address: "assistant@example.com"}))

	res, err := f.svc.Compose(context.Background(), "a@example.com; b@example.com", "Hello", "Body", "c@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.To) != 2 || len(res.Cc) != 1 {
		t.Errorf("Compose() = %+v", res)
	}
	out := f.mem.Outbox()
	if len(out) != 1 || out[0].From.Address != "assistant@example.com" {
		t.Errorf("outbox = %+v", out)
	}
}

func TestSentCopyHasNormalImportance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Compose(ctx, "kim@example.com", "Hello", "Body", ""); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.ListRecent(ctx, 1, "Sent Items")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range res.Messages {
		if m.Subject == "Hello" {
			if m.Importance.String() != "Normal" {
				t.Errorf("sent copy importance = %v, want Normal", m.Importance)
			}
			return
		}
	}
	t.Fatalf("sent copy not listed: %v", subjects(res.Messages))
}

func TestListTasks(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		due  string
		want string
	}{
		{"today", "Overdue report|Pay invoice"},
		{" Tomorrow ", "Book travel"},
		{"this week", "Overdue report|Pay invoice|Book travel"},
		{"all", "Overdue report|Pay invoice|Book travel|Plan offsite|Someday"},
	}
	for _, tt := range tests {
		t.Run(tt.due, func(t *testing.T) {
			res, err := f.svc.ListTasks(context.Background(), tt.due)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, task := range res.Tasks {
				got = append(got, task.Subject)
			}
			if strings.Join(got, "|") != tt.want {
				t.Errorf("tasks = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateTask(ctx, "Call the bank", "tomorrow", "9:30 am")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Due.Equal(*day(1)) {
		t.Errorf("due = %v", res.Due)
	}
	if res.ReminderAt == nil || !res.ReminderAt.Equal(day(1).Add(9*time.Hour+30*time.Minute)) {
		t.Errorf("reminder = %v", res.ReminderAt)
	}

	res, err = f.svc.CreateTask(ctx, "File report", "2024-04-01", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Due.Format("2006-01-02") != "2024-04-01" || res.ReminderAt != nil {
		t.Errorf("CreateTask() = %+v", res)
	}
	if f.mem.Mutations() != 2 {
		t.Errorf("mutations = %d", f.mem.Mutations())
	}
}

func TestCompleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.AddTask(mail.Task{Subject: "Pay invoice", DueDate: day(3)})

	task, err := f.svc.CompleteTask(ctx, "Pay invoice")
	if err != nil {
		t.Fatal(err)
	}
	if !task.Complete || !task.DueDate.Equal(*day(0)) {
		t.Errorf("completed = %+v", task)
	}

	left, err := f.svc.ListTasks(ctx, "all")
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, task := range left.Tasks {
		if task.Subject == "Pay invoice" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("remaining duplicates = %d, want 1", count)
	}

	_, err = f.svc.CompleteTask(ctx, "Filed taxes")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Message != "No active task with the subject 'Filed taxes' was found." {
		t.Errorf("error = %v", err)
	}
}

func TestBriefing(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.Briefing(context.Background(), 14, 2)
	if err != nil {
		t.Fatal(err)
	}

	if b.UserAddress != "me@example.com" || b.ManagerName != "Dana Boss" {
		t.Errorf("metadata = %q %q", b.UserAddress, b.ManagerName)
	}
	if len(b.Calendar) != 1 || b.Calendar[0].Subject != "Standup" {
		t.Errorf("calendar = %+v", b.Calendar)
	}
	if len(b.Reminders) != 2 {
		t.Errorf("reminders = %d", len(b.Reminders))
	}

	var order []string
	for _, st := range b.Threads {
		order = append(order, st.Subject)
	}
	if strings.Join(order, "|") != "Quarterly report|URGENT: contract|Lunch|Proposal" {
		t.Errorf("thread order = %v", order)
	}
	if b.Threads[0].Ordinal != 1 || !b.Threads[0].FromManager {
		t.Errorf("first thread = %+v", b.Threads[0])
	}
	last := b.Threads[3]
	if last.LastFrom != "me" || last.FollowUp != "Awaiting reply for 3 days." || last.Ordinal != 4 {
		t.Errorf("sent thread = %+v", last)
	}
	if f.svc.Cache().Len() != 4 {
		t.Errorf("cache len = %d", f.svc.Cache().Len())
	}
}

func TestBriefingWithoutIdentity(t *testing.T) {
	mem := backend.NewMemory(backend.Identity{})
	svc := New(mem, session.New(), WithClock(func() time.Time { return now }))
	if _, err := svc.Briefing(context.Background(), 3, 2); !errors.Is(err, ErrNoUserAddress) {
		t.Errorf("error = %v", err)
	}
}

func TestPrioritize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Prioritize(ctx, 1, 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 || !res.Entries[0].FromManager || res.Entries[0].Importance != "High" {
		t.Fatalf("entries = %+v", res.Entries)
	}

	res, err = f.svc.Prioritize(ctx, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 2 || res.Entries[1].Subject != "Lunch" {
		t.Errorf("entries = %+v", res.Entries)
	}
	if m, err := f.svc.Cache().Get(2); err != nil || m.Subject != "Lunch" {
		t.Errorf("cache(2) = %v, %v", m, err)
	}
}

func TestClassifyActionable(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.ClassifyActionable(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		ordinal  int
		subject  string
		category analysis.Category
		reason   analysis.Reason
	}{
		{1, "Quarterly report", analysis.CategoryUnreadPriority, analysis.ReasonManager},
		{2, "URGENT: contract", analysis.CategoryUnreadPriority, analysis.ReasonUrgent},
		{3, "Proposal", analysis.CategoryPendingFollowUp, analysis.ReasonNone},
	}
	if len(res.Items) != len(want) {
		t.Fatalf("items = %d, want %d", len(res.Items), len(want))
	}
	for i, w := range want {
		got := res.Items[i]
		if got.Ordinal != w.ordinal || got.Message.Subject != w.subject || got.Category != w.category || got.Reason != w.reason {
			t.Errorf("item %d = {%d %q %s %s}", i, got.Ordinal, got.Message.Subject, got.Category, got.Reason)
		}
	}
	if n := len(res.ByCategory(analysis.CategoryUnreadPriority)); n != 2 {
		t.Errorf("unread priority = %d", n)
	}
	if f.svc.Cache().Len() != 3 {
		t.Errorf("cache len = %d", f.svc.Cache().Len())
	}
}

func TestEstimateLoad(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.EstimateLoad(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	m := res.Metrics
	if m.UnreadUrgent != 1 || m.FlaggedThreads != 1 || m.ActiveConversations != 4 || m.Replies != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.LoadScore() != 0.2 {
		t.Errorf("LoadScore() = %v", m.LoadScore())
	}
	if f.svc.Cache().Len() != 0 {
		t.Errorf("load estimate must not populate the cache")
	}
}

func TestConnectionFailure(t *testing.T) {
	f := newFixture(t)
	f.mem.ConnectErr = errors.New("application not running")
	_, err := f.svc.ListRecent(context.Background(), 7, "")
	if !errors.Is(err, backend.ErrConnection) {
		t.Errorf("error = %v", err)
	}
}

func TestParseReminder(t *testing.T) {
	base := *day(0)
	for _, in := range []string{"3:04 PM", "3:04pm", "15:04"} {
		got, err := parseReminder(in, base)
		if err != nil {
			t.Errorf("parseReminder(%q) error = %v", in, err)
			continue
		}
		if got.Hour() != 15 || got.Minute() != 4 || !startOfDay(got).Equal(base) {
			t.Errorf("parseReminder(%q) = %v", in, got)
		}
	}
}
