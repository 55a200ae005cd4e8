package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/mail"
)

// Listing is the result of ListRecent and Search. Message i has ordinal i+1.
type Listing struct {
	Folder   string
	Days     int
	Term     string
	Messages []*mail.Message
}

// FolderLabel is "Inbox" for the default folder and the quoted name otherwise.
func (l *Listing) FolderLabel() string { return folderLabel(l.Folder) }

func folderLabel(name string) string {
	if name == "" {
		return "Inbox"
	}
	return "'" + name + "'"
}

func validateLookback(days int) error {
	if days < 1 || days > MaxLookbackDays {
		return invalid("days", "'days' must be an integer between 1 and %d", MaxLookbackDays)
	}
	return nil
}

// ListRecent lists messages received in the last days, newest first, and
// makes them addressable by ordinal.
func (s *Service) ListRecent(ctx context.Context, days int, folderName string) (*Listing, error) {
	if err := validateLookback(days); err != nil {
		return nil, err
	}
	return s.list(ctx, days, folderName, "")
}

// Search lists messages whose subject, sender or body contains any of the
// " OR " separated terms.
func (s *Service) Search(ctx context.Context, term string, days int, folderName string) (*Listing, error) {
	if strings.TrimSpace(term) == "" {
		return nil, invalid("search_term", "Please provide a search term")
	}
	if err := validateLookback(days); err != nil {
		return nil, err
	}
	return s.list(ctx, days, folderName, term)
}

// SplitTerms splits a search expression on " OR ".
func SplitTerms(term string) []string {
	var out []string
	for _, t := range strings.Split(term, " OR ") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Service) list(ctx context.Context, days int, folderName, term string) (*Listing, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	folder, err := s.folder(ctx, sess, folderName)
	if err != nil {
		return nil, err
	}

	s.cache.Reset()

	r := backend.Restriction{
		ReceivedSince: s.now().AddDate(0, 0, -days),
		Terms:         SplitTerms(term),
		SortBy:        backend.SortReceived,
		Descending:    true,
	}
	msgs, err := s.messages(ctx, folder, r, s.formatterFor(ctx, sess))
	if err != nil {
		return nil, err
	}

	s.cache.Store(msgs)
	s.logger.Debug().Str("folder", folder.Name()).Int("count", len(msgs)).Str("term", term).Msg("Listed messages")

	return &Listing{Folder: folderName, Days: days, Term: term, Messages: msgs}, nil
}

// UnreadCount is the result of CountUnread.
type UnreadCount struct {
	Folder string
	Count  int
}

// CountUnread counts unread messages in a folder. It hands out no ordinals.
func (s *Service) CountUnread(ctx context.Context, folderName string) (*UnreadCount, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	folder, err := s.folder(ctx, sess, folderName)
	if err != nil {
		return nil, err
	}

	recs, err := folder.Items(ctx, backend.Restriction{UnreadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to count unread emails: %w", err)
	}
	count := 0
	for _, rec := range recs {
		if rec.Kind() == mail.KindMessage {
			count++
		}
	}
	return &UnreadCount{Folder: folderLabel(folderName), Count: count}, nil
}

// ListFolders returns the folder tree.
func (s *Service) ListFolders(ctx context.Context) ([]backend.FolderNode, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	tree, err := sess.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return tree, nil
}

// Detail is a cached message plus the attachment names read back from the
// backend.
type Detail struct {
	Ordinal     int
	Message     *mail.Message
	Attachments []string
}

// Detail resolves an ordinal and re-reads the item.
func (s *Service) Detail(ctx context.Context, ordinal int) (*Detail, error) {
	msg, err := s.cached(ordinal)
	if err != nil {
		return nil, err
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	rec, err := s.itemByID(ctx, sess, ordinal, msg.ID)
	if err != nil {
		return nil, err
	}

	// The detail view shows the item as it is now, not as it was listed.
	if item, err := s.formatterFor(ctx, sess).Format(rec); err != nil {
		s.logger.Warn().Err(err).Str("id", msg.ID).Msg("Failed to re-read email, using listed copy")
	} else if fresh, ok := item.(*mail.Message); ok {
		msg = fresh
	}

	d := &Detail{Ordinal: ordinal, Message: msg}
	if mr, ok := rec.(backend.MessageRecord); ok && msg.HasAttachments() {
		names, err := mr.AttachmentNames()
		if err != nil {
			s.logger.Warn().Err(err).Str("id", msg.ID).Msg("Failed to read attachment names")
		}
		d.Attachments = names
	}
	return d, nil
}

func (s *Service) itemByID(ctx context.Context, sess backend.Session, ordinal int, id string) (backend.Record, error) {
	rec, err := sess.ItemByID(ctx, id)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, notFound(err, "Email #%d could no longer be found. It may have been moved or deleted.", ordinal)
		}
		return nil, fmt.Errorf("failed to retrieve email #%d: %w", ordinal, err)
	}
	return rec, nil
}

// ReplyResult reports who a reply went to.
type ReplyResult struct {
	To      mail.Address
	Subject string
}

// Reply answers a cached received message.
func (s *Service) Reply(ctx context.Context, ordinal int, text string) (*ReplyResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalid("reply_text", "Please provide the reply text")
	}
	msg, err := s.cached(ordinal)
	if err != nil {
		return nil, err
	}
	if msg.IsSent {
		return nil, invalid("email_number", "Email #%d is a sent item. You cannot reply to it.", ordinal)
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	rec, err := s.itemByID(ctx, sess, ordinal, msg.ID)
	if err != nil {
		return nil, err
	}

	from, err := s.sender(ctx, sess)
	if err != nil {
		return nil, err
	}

	out := &mail.Outgoing{
		From:     from,
		To:       []mail.Address{msg.Sender()},
		Subject:  mail.ReplySubject(msg.Subject),
		TextBody: text,
	}
	if th, ok := rec.(backend.Threaded); ok && th.MessageID() != "" {
		out.InReplyTo = th.MessageID()
		out.References = th.References()
	} else {
		out.InReplyTo = msg.ConversationID
	}

	if err := sess.Send(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to send reply: %w", err)
	}
	s.logger.Info().Str("to", msg.SenderAddress).Str("subject", out.Subject).Msg("Reply sent")

	return &ReplyResult{To: msg.Sender(), Subject: out.Subject}, nil
}

func (s *Service) sender(ctx context.Context, sess backend.Session) (mail.Address, error) {
	if s.from.Address != "" {
		return s.from, nil
	}
	user, err := sess.CurrentUser(ctx)
	if err != nil {
		return mail.Address{}, fmt.Errorf("failed to resolve current user: %w", err)
	}
	return mail.Address{Address: user.Address}, nil
}

// MoveResult reports a completed move.
type MoveResult struct {
	Ordinal int
	Subject string
	Folder  string
}

// Move files a cached message into the named folder and forgets its ordinal.
func (s *Service) Move(ctx context.Context, ordinal int, folderName string) (*MoveResult, error) {
	if strings.TrimSpace(folderName) == "" {
		return nil, invalid("destination_folder_name", "You must provide a destination folder name.")
	}
	msg, err := s.cached(ordinal)
	if err != nil {
		return nil, err
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	if _, err := s.itemByID(ctx, sess, ordinal, msg.ID); err != nil {
		return nil, err
	}
	dest, err := sess.FolderByName(ctx, folderName)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, notFound(err, "Destination folder '%s' could not be found. Use the list_folders tool to see available folders.", folderName)
		}
		return nil, fmt.Errorf("failed to look up folder %q: %w", folderName, err)
	}

	if err := sess.Move(ctx, msg.ID, dest); err != nil {
		return nil, fmt.Errorf("failed to move email: %w", err)
	}
	s.cache.Remove(ordinal)
	s.logger.Info().Int("ordinal", ordinal).Str("folder", dest.Name()).Msg("Email moved")

	return &MoveResult{Ordinal: ordinal, Subject: msg.Subject, Folder: folderName}, nil
}

// ComposeResult lists the recipients of a new message.
type ComposeResult struct {
	To []string
	Cc []string
}

// Compose sends a new message. recipient and cc accept comma or semicolon
// separated lists.
func (s *Service) Compose(ctx context.Context, recipient, subject, body, cc string) (*ComposeResult, error) {
	to := mail.ParseAddressList(recipient)
	if len(to) == 0 {
		return nil, invalid("recipient_email", "Please provide a recipient email address")
	}
	if strings.TrimSpace(subject) == "" {
		return nil, invalid("subject", "Please provide a subject")
	}
	ccList := mail.ParseAddressList(cc)

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	from, err := s.sender(ctx, sess)
	if err != nil {
		return nil, err
	}

	out := &mail.Outgoing{From: from, To: to, Cc: ccList, Subject: subject, TextBody: body}
	if err := sess.Send(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Info().Strs("to", out.Recipients()).Str("subject", subject).Msg("Email sent")

	res := &ComposeResult{}
	for _, a := range to {
		res.To = append(res.To, a.Address)
	}
	for _, a := range ccList {
		res.Cc = append(res.Cc, a.Address)
	}
	return res, nil
}
