package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/mail"
	"github.com/deskmail/deskmail/internal/mailbox"
)

const (
	receivedLayout = "2006-01-02"
	sentLayout     = "2006-01-02 15:04:05"
)

var ordinalParam = map[string]interface{}{
	"type":        "integer",
	"description": "The email number from the most recent listing",
}

var folderParam = stringParam("Optional folder name. Defaults to the Inbox.")

// NewListRecentTool lists recent messages.
func NewListRecentTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "list_recent_emails",
		description: "Lists email titles from the specified number of days. Each email gets a number that can be used with get_email_by_number and the other by-number tools.",
		parameters: object(map[string]interface{}{
			"days":        intParam(fmt.Sprintf("Number of days to look back (max %d)", mailbox.MaxLookbackDays), mailbox.DefaultListDays),
			"folder_name": folderParam,
		}),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Days   *int   `json:"days"`
				Folder string `json:"folder_name"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.ListRecent(ctx, intOr(in.Days, mailbox.DefaultListDays), in.Folder)
			if err != nil {
				return "", err
			}
			return renderListing(res), nil
		},
	}
}

// NewSearchTool searches messages by subject, sender or body.
func NewSearchTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "search_emails",
		description: "Searches emails by subject, sender or body. Separate alternatives with OR, e.g. 'invoice OR receipt'.",
		parameters: object(map[string]interface{}{
			"search_term": stringParam("Term to search for"),
			"days":        intParam(fmt.Sprintf("Number of days to look back (max %d)", mailbox.MaxLookbackDays), mailbox.DefaultListDays),
			"folder_name": folderParam,
		}, "search_term"),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Term   string `json:"search_term"`
				Days   *int   `json:"days"`
				Folder string `json:"folder_name"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.Search(ctx, in.Term, intOr(in.Days, mailbox.DefaultListDays), in.Folder)
			if err != nil {
				return "", err
			}
			return renderListing(res), nil
		},
	}
}

func renderListing(l *mailbox.Listing) string {
	scope := fmt.Sprintf("in %s from the last %d days", l.FolderLabel(), l.Days)
	if len(l.Messages) == 0 {
		if l.Term != "" {
			return fmt.Sprintf("No emails matching '%s' found %s.", l.Term, scope)
		}
		return fmt.Sprintf("No emails found %s.", scope)
	}

	var b strings.Builder
	if l.Term != "" {
		fmt.Fprintf(&b, "Found %d emails matching '%s' %s:\n\n", len(l.Messages), l.Term, scope)
	} else {
		fmt.Fprintf(&b, "Found %d emails %s:\n\n", len(l.Messages), scope)
	}
	for i, m := range l.Messages {
		fmt.Fprintf(&b, "Email #%d\n", i+1)
		fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
		fmt.Fprintf(&b, "From: %s <%s>\n", m.SenderName, m.SenderAddress)
		fmt.Fprintf(&b, "Received: %s\n", formatTime(m, false))
		fmt.Fprintf(&b, "Read Status: %s\n", readStatus(m))
		fmt.Fprintf(&b, "Has Attachments: %s\n\n", yesNo(m.HasAttachments()))
	}
	b.WriteString("To view the full content of an email, use the get_email_by_number tool with the email number.")
	return b.String()
}

func formatTime(m *mail.Message, sent bool) string {
	if sent {
		if m.SentAt == nil {
			return "Unknown"
		}
		return m.SentAt.Format(sentLayout)
	}
	if m.ReceivedAt == nil {
		return "Unknown"
	}
	return m.ReceivedAt.Format(receivedLayout)
}

func readStatus(m *mail.Message) string {
	if m.Unread {
		return "Unread"
	}
	return "Read"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// NewCountUnreadTool counts unread messages.
func NewCountUnreadTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "count_unread_emails",
		description: "Counts the unread emails in a folder.",
		parameters:  object(map[string]interface{}{"folder_name": folderParam}),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Folder string `json:"folder_name"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.CountUnread(ctx, in.Folder)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("You have %d unread emails in your %s.", res.Count, res.Folder), nil
		},
	}
}

// NewListFoldersTool prints the folder tree.
func NewListFoldersTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "list_folders",
		description: "Lists the available mail folders, up to three levels deep.",
		parameters:  object(map[string]interface{}{}),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			tree, err := svc.ListFolders(ctx)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			b.WriteString("Available mail folders:\n\n")
			writeFolders(&b, tree, 0)
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func writeFolders(b *strings.Builder, nodes []backend.FolderNode, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(b, "%s- %s\n", strings.Repeat("  ", depth), n.Name)
		writeFolders(b, n.Children, depth+1)
	}
}

// NewGetEmailTool shows one cached message in full.
func NewGetEmailTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "get_email_by_number",
		description: "Shows the full content of an email from the most recent listing.",
		parameters:  object(map[string]interface{}{"email_number": ordinalParam}, "email_number"),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Ordinal int `json:"email_number"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			d, err := svc.Detail(ctx, in.Ordinal)
			if err != nil {
				return "", err
			}
			return renderDetail(d), nil
		},
	}
}

func renderDetail(d *mailbox.Detail) string {
	m := d.Message
	var b strings.Builder
	fmt.Fprintf(&b, "Email #%d Details:\n\n", d.Ordinal)
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	if m.IsSent {
		fmt.Fprintf(&b, "To: %s\n", strings.Join(m.Recipients, ", "))
		fmt.Fprintf(&b, "Sent: %s\n", formatTime(m, true))
	} else {
		fmt.Fprintf(&b, "From: %s <%s>\n", m.SenderName, m.SenderAddress)
		fmt.Fprintf(&b, "Received: %s\n", formatTime(m, false))
		fmt.Fprintf(&b, "Recipients: %s\n", strings.Join(m.Recipients, ", "))
	}
	fmt.Fprintf(&b, "Has Attachments: %s\n", yesNo(m.HasAttachments()))
	if len(d.Attachments) > 0 {
		b.WriteString("Attachments:\n")
		for _, name := range d.Attachments {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}
	b.WriteString("\nBody:\n")
	b.WriteString(m.Body)
	if !m.IsSent {
		b.WriteString("\n\nTo reply to this email, use the reply_to_email_by_number tool with this email number.")
	}
	return b.String()
}

// NewReplyTool replies to a cached message.
func NewReplyTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "reply_to_email_by_number",
		description: "Replies to the sender of an email from the most recent listing.",
		parameters: object(map[string]interface{}{
			"email_number": ordinalParam,
			"reply_text":   stringParam("Text of the reply"),
		}, "email_number", "reply_text"),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Ordinal int    `json:"email_number"`
				Text    string `json:"reply_text"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.Reply(ctx, in.Ordinal, in.Text)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Reply sent successfully to: %s <%s>", res.To.Name, res.To.Address), nil
		},
	}
}

// NewMoveTool files a cached message into another folder.
func NewMoveTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "move_email_by_number",
		description: "Moves an email from the most recent listing to another folder. Use list_folders to see folder names.",
		parameters: object(map[string]interface{}{
			"email_number":            ordinalParam,
			"destination_folder_name": stringParam("Name of the destination folder"),
		}, "email_number", "destination_folder_name"),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Ordinal int    `json:"email_number"`
				Folder  string `json:"destination_folder_name"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.Move(ctx, in.Ordinal, in.Folder)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Success: Email #%d, '%s', has been moved to the '%s' folder.", res.Ordinal, res.Subject, res.Folder), nil
		},
	}
}

// NewComposeTool sends a new message.
func NewComposeTool(svc *mailbox.Service) Tool {
	return &mailboxTool{
		name:        "compose_email",
		description: "Composes and sends a new email.",
		parameters: object(map[string]interface{}{
			"recipient_email": stringParam("Recipient address; separate several with ';' or ','"),
			"subject":         stringParam("Email subject"),
			"body":            stringParam("Email body (plain text)"),
			"cc_email":        stringParam("Optional CC addresses"),
		}, "recipient_email", "subject", "body"),
		run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				To      string `json:"recipient_email"`
				Subject string `json:"subject"`
				Body    string `json:"body"`
				Cc      string `json:"cc_email"`
			}
			if err := decode(args, &in); err != nil {
				return "", err
			}
			res, err := svc.Compose(ctx, in.To, in.Subject, in.Body, in.Cc)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Email sent successfully to: %s", strings.Join(res.To, ", ")), nil
		},
	}
}
