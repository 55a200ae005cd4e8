package imapmail

import (
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/deskmail/deskmail/internal/backend"
)

// mailboxInfo is one LIST entry split into its hierarchy.
type mailboxInfo struct {
	Path   string
	Name   string
	Parent string
	Attrs  []imap.MailboxAttr
}

func mailboxInfos(data []*imap.ListData) []mailboxInfo {
	infos := make([]mailboxInfo, 0, len(data))
	for _, d := range data {
		info := mailboxInfo{Path: d.Mailbox, Name: d.Mailbox, Attrs: d.Attrs}
		if d.Delim != 0 {
			if i := strings.LastIndex(d.Mailbox, string(d.Delim)); i >= 0 {
				info.Parent = d.Mailbox[:i]
				info.Name = d.Mailbox[i+1:]
			}
		}
		if strings.EqualFold(info.Path, inboxName) {
			info.Name = "Inbox"
		}
		infos = append(infos, info)
	}
	return infos
}

func (m mailboxInfo) has(attr imap.MailboxAttr) bool {
	for _, a := range m.Attrs {
		if strings.EqualFold(string(a), string(attr)) {
			return true
		}
	}
	return false
}

func children(infos []mailboxInfo, parent string) []mailboxInfo {
	var out []mailboxInfo
	for _, info := range infos {
		if info.Parent == parent {
			out = append(out, info)
		}
	}
	return out
}

// lookup finds a mailbox by display name: inbox subfolders first, then
// top-level mailboxes, then one level below each top-level mailbox.
func lookup(infos []mailboxInfo, name string) (mailboxInfo, bool) {
	var inbox string
	for _, info := range infos {
		if strings.EqualFold(info.Path, inboxName) {
			inbox = info.Path
		}
	}
	if inbox != "" {
		for _, info := range children(infos, inbox) {
			if strings.EqualFold(info.Name, name) {
				return info, true
			}
		}
	}

	roots := children(infos, "")
	for _, info := range roots {
		if strings.EqualFold(info.Name, name) {
			return info, true
		}
	}
	for _, root := range roots {
		for _, info := range children(infos, root.Path) {
			if strings.EqualFold(info.Name, name) {
				return info, true
			}
		}
	}
	return mailboxInfo{}, false
}

var sentNames = []string{"Sent", "Sent Items", "Sent Messages", "Sent Mail"}

// sentMailbox picks the configured Sent folder, then the one advertising
// \Sent, then a conventionally named one.
func sentMailbox(infos []mailboxInfo, configured string) (mailboxInfo, bool) {
	if configured != "" {
		for _, info := range infos {
			if strings.EqualFold(info.Path, configured) {
				return info, true
			}
		}
	}
	for _, info := range infos {
		if info.has(imap.MailboxAttrSent) {
			return info, true
		}
	}
	for _, name := range sentNames {
		if info, ok := lookup(infos, name); ok {
			return info, true
		}
	}
	return mailboxInfo{}, false
}

func tree(infos []mailboxInfo, depth int) []backend.FolderNode {
	return subtree(infos, "", depth)
}

func subtree(infos []mailboxInfo, parent string, depth int) []backend.FolderNode {
	if depth == 0 {
		return nil
	}
	var nodes []backend.FolderNode
	for _, info := range children(infos, parent) {
		nodes = append(nodes, backend.FolderNode{
			Name:     info.Name,
			Children: subtree(infos, info.Path, depth-1),
		})
	}
	return nodes
}
