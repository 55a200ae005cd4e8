package imapmail

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"

	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/mail"
	"github.com/deskmail/deskmail/internal/storage"
)

func listing() []mailboxInfo {
	return mailboxInfos([]*imap.ListData{
		{Mailbox: "INBOX", Delim: '/'},
		{Mailbox: "INBOX/Projects", Delim: '/'},
		{Mailbox: "INBOX/Projects/Alpha", Delim: '/'},
		{Mailbox: "INBOX/Projects/Alpha/Old", Delim: '/'},
		{Mailbox: "Archive", Delim: '/', Attrs: []imap.MailboxAttr{imap.MailboxAttrArchive}},
		{Mailbox: "Archive/2023", Delim: '/'},
		{Mailbox: "Outbox Copies", Delim: '/', Attrs: []imap.MailboxAttr{imap.MailboxAttrSent}},
		{Mailbox: "Sent", Delim: '/'},
	})
}

func TestMailboxInfos(t *testing.T) {
	infos := listing()
	if infos[0].Name != "Inbox" || infos[0].Parent != "" {
		t.Errorf("inbox = %+v", infos[0])
	}
	if infos[2].Name != "Alpha" || infos[2].Parent != "INBOX/Projects" {
		t.Errorf("nested = %+v", infos[2])
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		wantPath string
		wantOK   bool
	}{
		{"projects", "INBOX/Projects", true},
		{"ARCHIVE", "Archive", true},
		{"2023", "Archive/2023", true},
		{"inbox", "INBOX", true},
		{"Alpha", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := lookup(listing(), tt.name)
			if ok != tt.wantOK || info.Path != tt.wantPath {
				t.Errorf("lookup(%q) = %q, %v; want %q, %v", tt.name, info.Path, ok, tt.wantPath, tt.wantOK)
			}
		})
	}
}

func TestSentMailbox(t *testing.T) {
	infos := listing()

	if info, _ := sentMailbox(infos, "sent"); info.Path != "Sent" {
		t.Errorf("configured = %q", info.Path)
	}
	if info, _ := sentMailbox(infos, ""); info.Path != "Outbox Copies" {
		t.Errorf("special-use = %q", info.Path)
	}
	plain := mailboxInfos([]*imap.ListData{{Mailbox: "INBOX"}, {Mailbox: "Sent Items"}})
	if info, ok := sentMailbox(plain, ""); !ok || info.Path != "Sent Items" {
		t.Errorf("by name = %q, %v", info.Path, ok)
	}
	if _, ok := sentMailbox(mailboxInfos([]*imap.ListData{{Mailbox: "INBOX"}}), ""); ok {
		t.Error("expected no sent folder")
	}
}

func TestTreeDepth(t *testing.T) {
	nodes := tree(listing(), 3)
	if len(nodes) != 4 {
		t.Fatalf("roots = %d", len(nodes))
	}
	inbox := nodes[0]
	if inbox.Name != "Inbox" || len(inbox.Children) != 1 {
		t.Fatalf("inbox = %+v", inbox)
	}
	alpha := inbox.Children[0].Children[0]
	if alpha.Name != "Alpha" || alpha.Children != nil {
		t.Errorf("third level = %+v", alpha)
	}
}

func TestEntryID(t *testing.T) {
	id := entryID("INBOX/Re#1", 42)
	folder, uid, ok := parseEntryID(id)
	if !ok || folder != "INBOX/Re#1" || uid != 42 {
		t.Errorf("parseEntryID(%q) = %q, %d, %v", id, folder, uid, ok)
	}

	for _, bad := range []string{"", "6f1c-uuid", "#5", "INBOX#0", "INBOX#x"} {
		if _, _, ok := parseEntryID(bad); ok {
			t.Errorf("parseEntryID(%q) accepted", bad)
		}
	}
}

const rawReply = "Message-ID: <r2@example.com>\r\n" +
	"In-Reply-To: <r1@example.com>\r\n" +
	"References: <r0@example.com> <r1@example.com>\r\n" +
	"From: Dana Boss <dana@example.com>\r\n" +
	"To: me@example.com\r\n" +
	"Cc: Lee <lee@example.com>\r\n" +
	"Subject: Re: Budget\r\n" +
	"Date: Tue, 12 Mar 2024 09:30:00 +0000\r\n" +
	"Importance: high\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Numbers attached.\r\n"

func TestMessageRecord(t *testing.T) {
	received := time.Date(2024, 3, 12, 9, 31, 0, 0, time.UTC)
	m := newMessage("INBOX", 7, []imap.Flag{imap.FlagFlagged, "Finance", "$Junk"}, received, nil, []byte(rawReply))
	if m.parseErr != nil {
		t.Fatal(m.parseErr)
	}

	var rec backend.MessageRecord = m
	if conv, _ := rec.ConversationID(); conv != "r0@example.com" {
		t.Errorf("conversation = %q", conv)
	}
	if m.MessageID() != "r2@example.com" || len(m.References()) != 2 {
		t.Errorf("threading = %q %v", m.MessageID(), m.References())
	}
	if from, _ := rec.Sender(); from.Address != "dana@example.com" || from.Name != "Dana Boss" {
		t.Errorf("sender = %+v", from)
	}
	if to, _ := rec.Recipients(); len(to) != 2 {
		t.Errorf("recipients = %v", to)
	}
	if unread, _ := rec.Unread(); !unread {
		t.Error("message without \\Seen should be unread")
	}
	if flag, _ := rec.FlagStatus(); flag != mail.FlagFlagged {
		t.Errorf("flag = %v", flag)
	}
	if imp, _ := rec.Importance(); imp != mail.ImportanceHigh {
		t.Errorf("importance = %v", imp)
	}
	if cats, _ := rec.Categories(); cats != "Finance" {
		t.Errorf("categories = %q", cats)
	}
	if body, _ := rec.Body(); !strings.Contains(body, "Numbers attached.") {
		t.Errorf("body = %q", body)
	}
	if at, ok := rec.ReceivedAt(); !ok || !at.Equal(received) {
		t.Errorf("received = %v", at)
	}
	if at, ok := rec.SentAt(); !ok || at.Hour() != 9 || at.Minute() != 30 {
		t.Errorf("sent = %v", at)
	}
	if folder, _ := rec.ParentFolderID(); folder != "INBOX" {
		t.Errorf("folder = %q", folder)
	}
}

func TestMessageEnvelopeFallback(t *testing.T) {
	env := &imap.Envelope{
		Subject:   "Hello",
		MessageID: "e1@example.com",
		From:      []imap.Address{{Name: "Sam", Mailbox: "sam", Host: "example.com"}},
	}
	m := newMessage("INBOX", 3, []imap.Flag{imap.FlagSeen}, time.Time{}, env, nil)

	if subject, err := m.Subject(); err != nil || subject != "Hello" {
		t.Errorf("subject = %q, %v", subject, err)
	}
	if conv, err := m.ConversationID(); err != nil || conv != "e1@example.com" {
		t.Errorf("conversation = %q, %v", conv, err)
	}
	if from, _ := m.Sender(); from.Address != "sam@example.com" {
		t.Errorf("sender = %+v", from)
	}
	if _, err := m.Body(); err == nil {
		t.Error("expected body error without a fetched body")
	}
	if unread, _ := m.Unread(); unread {
		t.Error("\\Seen message reported unread")
	}
}

func TestSearchCriteria(t *testing.T) {
	since := time.Date(2024, 3, 10, 15, 4, 0, 0, time.UTC)
	c := searchCriteria(backend.Restriction{ReceivedSince: since, UnreadOnly: true, Subject: "Budget"})

	if !c.Since.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", c.Since)
	}
	if len(c.NotFlag) != 1 || c.NotFlag[0] != imap.FlagSeen {
		t.Errorf("not flag = %v", c.NotFlag)
	}
	if len(c.Header) != 1 || c.Header[0].Value != "Budget" {
		t.Errorf("header = %v", c.Header)
	}
	if empty := searchCriteria(backend.Restriction{}); !empty.Since.IsZero() || empty.NotFlag != nil {
		t.Errorf("empty restriction = %+v", empty)
	}
}

func TestStoreFolders(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	s := &session{b: New(Config{}, store, nil, zerolog.Nop())}
	due := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	rec, err := s.CreateTask(ctx, mail.TaskDraft{Subject: "Send deck", DueDate: due})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveAppointment(ctx, &mail.Appointment{
		ID:      "a1",
		Subject: "Standup",
		Start:   due.Add(9 * time.Hour),
		End:     due.Add(10 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	tasks, _ := s.DefaultFolder(ctx, backend.FolderTasks)
	items, err := tasks.Items(ctx, backend.Restriction{IncompleteOnly: true})
	if err != nil || len(items) != 1 {
		t.Fatalf("tasks = %v, %v", items, err)
	}

	found, err := s.ItemByID(ctx, rec.EntryID())
	if err != nil || found.Kind() != mail.KindTask {
		t.Fatalf("ItemByID = %v, %v", found, err)
	}
	if err := s.MarkComplete(ctx, rec.EntryID()); err != nil {
		t.Fatal(err)
	}
	if items, _ := tasks.Items(ctx, backend.Restriction{IncompleteOnly: true}); len(items) != 0 {
		t.Errorf("completed task still listed")
	}
	if err := s.MarkComplete(ctx, "missing"); err == nil {
		t.Error("expected not found")
	}

	cal, _ := s.DefaultFolder(ctx, backend.FolderCalendar)
	appts, err := cal.Items(ctx, backend.Restriction{Overlap: &backend.TimeRange{Start: due, End: due.Add(24 * time.Hour)}})
	if err != nil || len(appts) != 1 {
		t.Errorf("appointments = %v, %v", appts, err)
	}
	if found, err := s.ItemByID(ctx, "a1"); err != nil || found.Kind() != mail.KindAppointment {
		t.Errorf("appointment lookup = %v, %v", found, err)
	}
}
