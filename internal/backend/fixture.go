package backend

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deskmail/deskmail/internal/mail"
)

// Fixture is the YAML description of a Memory mailbox.
type Fixture struct {
	User struct {
		Address string `yaml:"address"`
		Manager string `yaml:"manager"`
	} `yaml:"user"`
	Folders      []FixtureFolder      `yaml:"folders"`
	Messages     []FixtureMessage     `yaml:"messages"`
	Tasks        []FixtureTask        `yaml:"tasks"`
	Appointments []FixtureAppointment `yaml:"appointments"`
}

// FixtureFolder adds a folder under Parent ("" for a root, "inbox" for the
// inbox, or the name of a folder declared earlier).
type FixtureFolder struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
}

type FixtureMessage struct {
	ID           string    `yaml:"id"`
	Folder       string    `yaml:"folder"`
	Conversation string    `yaml:"conversation"`
	Subject      string    `yaml:"subject"`
	FromName     string    `yaml:"from_name"`
	From         string    `yaml:"from"`
	To           []string  `yaml:"to"`
	Received     time.Time `yaml:"received"`
	Sent         time.Time `yaml:"sent"`
	Body         string    `yaml:"body"`
	Attachments  []string  `yaml:"attachments"`
	Unread       bool      `yaml:"unread"`
	Importance   string    `yaml:"importance"`
	Categories   string    `yaml:"categories"`
	Flagged      bool      `yaml:"flagged"`
}

type FixtureTask struct {
	Subject  string     `yaml:"subject"`
	Due      *time.Time `yaml:"due"`
	Complete bool       `yaml:"complete"`
	Reminder *time.Time `yaml:"reminder"`
}

type FixtureAppointment struct {
	Subject  string    `yaml:"subject"`
	Start    time.Time `yaml:"start"`
	End      time.Time `yaml:"end"`
	Location string    `yaml:"location"`
	AllDay   bool      `yaml:"all_day"`
}

// LoadFixture reads a YAML fixture file into a new Memory backend.
func LoadFixture(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	return fx.Build()
}

// Build materialises the fixture.
func (fx *Fixture) Build() (*Memory, error) {
	m := NewMemory(Identity{Address: fx.User.Address, ManagerName: fx.User.Manager})

	byName := map[string]*MemoryFolder{
		"inbox":    m.Folder(FolderInbox),
		"sent":     m.Folder(FolderSent),
		"calendar": m.Folder(FolderCalendar),
		"tasks":    m.Folder(FolderTasks),
	}
	for _, f := range fx.Folders {
		var parent *MemoryFolder
		if f.Parent != "" {
			p, ok := byName[strings.ToLower(f.Parent)]
			if !ok {
				return nil, fmt.Errorf("folder %q: unknown parent %q", f.Name, f.Parent)
			}
			parent = p
		}
		byName[strings.ToLower(f.Name)] = m.AddFolder(parent, f.Name)
	}

	for i, msg := range fx.Messages {
		folderName := msg.Folder
		if folderName == "" {
			folderName = "inbox"
		}
		folder, ok := byName[strings.ToLower(folderName)]
		if !ok {
			return nil, fmt.Errorf("message %d: unknown folder %q", i, msg.Folder)
		}

		to := make([]mail.Address, 0, len(msg.To))
		for _, addr := range msg.To {
			to = append(to, mail.ParseAddressList(addr)...)
		}
		flag := mail.FlagNone
		if msg.Flagged {
			flag = mail.FlagFlagged
		}

		m.AddMessage(folder, &MessageData{
			ID:           msg.ID,
			Conversation: msg.Conversation,
			SubjectText:  msg.Subject,
			From:         mail.Address{Name: msg.FromName, Address: msg.From},
			Received:     msg.Received,
			Sent:         msg.Sent,
			To:           to,
			BodyText:     msg.Body,
			Attachments:  msg.Attachments,
			IsUnread:     msg.Unread,
			Priority:     parseImportance(msg.Importance),
			CategoryTags: msg.Categories,
			Flag:         flag,
		})
	}

	for _, t := range fx.Tasks {
		m.AddTask(mail.Task{
			Subject:     t.Subject,
			DueDate:     t.Due,
			Complete:    t.Complete,
			ReminderSet: t.Reminder != nil,
			ReminderAt:  t.Reminder,
		})
	}

	for _, a := range fx.Appointments {
		m.AddAppointment(mail.Appointment{
			Subject:  a.Subject,
			Start:    a.Start,
			End:      a.End,
			Location: a.Location,
			AllDay:   a.AllDay,
		})
	}

	return m, nil
}

func parseImportance(s string) mail.Importance {
	switch strings.ToLower(s) {
	case "high":
		return mail.ImportanceHigh
	case "low":
		return mail.ImportanceLow
	default:
		return mail.ImportanceNormal
	}
}
