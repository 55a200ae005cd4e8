package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/deskmail/deskmail/internal/analysis"
	"github.com/deskmail/deskmail/internal/backend"
	"github.com/deskmail/deskmail/internal/formatter"
	"github.com/deskmail/deskmail/internal/mail"
)

// Briefing is the raw material for a morning summary.
type Briefing struct {
	Date        time.Time
	UserAddress string
	ManagerName string
	Reminders   []*mail.Task
	Calendar    []*mail.Appointment
	Threads     []analysis.ThreadStatus
}

// Briefing summarises today's calendar, tasks due today or earlier and the
// status of every conversation active in the last days. Each thread's last
// message becomes addressable by ordinal.
func (s *Service) Briefing(ctx context.Context, days, followUpDays int) (*Briefing, error) {
	if days < 1 || days > MaxBriefingDays {
		return nil, invalid("days_to_scan", "'days_to_scan' must be an integer between 1 and %d.", MaxBriefingDays)
	}
	if followUpDays < 1 {
		return nil, invalid("follow_up_days", "'follow_up_days' must be a positive integer.")
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	who, err := s.identity(ctx, sess)
	if err != nil {
		return nil, err
	}
	now := s.now()

	threads, err := s.conversations(ctx, sess, days)
	if err != nil {
		return nil, err
	}

	s.cache.Reset()
	statuses := make([]analysis.ThreadStatus, 0, len(threads))
	for _, t := range threads {
		st := analysis.Status(t, who, now, followUpDays)
		st.Ordinal = s.cache.Add(st.Last)
		statuses = append(statuses, st)
	}
	analysis.SortStatuses(statuses)

	b := &Briefing{
		Date:        now,
		UserAddress: who.Address,
		ManagerName: who.ManagerName,
		Threads:     statuses,
	}

	if b.Calendar, err = s.appointments(ctx, sess, now); err != nil {
		s.logger.Warn().Err(err).Msg("Could not retrieve calendar appointments")
	}
	if b.Reminders, err = s.tasks(ctx, sess, backend.Restriction{
		IncompleteOnly: true,
		DueBefore:      endOfDay(now),
		SortBy:         backend.SortDue,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Could not retrieve tasks")
	}
	return b, nil
}

// appointments returns the appointments overlapping the day of now.
func (s *Service) appointments(ctx context.Context, sess backend.Session, now time.Time) ([]*mail.Appointment, error) {
	folder, err := sess.DefaultFolder(ctx, backend.FolderCalendar)
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar: %w", err)
	}
	recs, err := folder.Items(ctx, backend.Restriction{
		Overlap: &backend.TimeRange{Start: startOfDay(now), End: endOfDay(now)},
		SortBy:  backend.SortStart,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}

	var out []*mail.Appointment
	for _, rec := range recs {
		ar, ok := rec.(backend.AppointmentRecord)
		if !ok {
			continue
		}
		a, err := formatter.Appointment(ar)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Skipping unreadable appointment")
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Prioritized is the result of Prioritize.
type Prioritized struct {
	Days    int
	Entries []analysis.PriorityEntry
}

// Prioritize returns feature rows for the newest inbox messages so the
// assistant can rank them. Rows are addressable by ordinal.
func (s *Service) Prioritize(ctx context.Context, days, maxScan int) (*Prioritized, error) {
	if days < 1 || days > MaxPrioritizeDays {
		return nil, invalid("days", "'days' must be an integer between 1 and %d for AI analysis.", MaxPrioritizeDays)
	}
	if maxScan < MinPrioritizeScan || maxScan > MaxPrioritizeScan {
		return nil, invalid("max_emails_to_scan", "'max_emails_to_scan' must be between %d and %d.", MinPrioritizeScan, MaxPrioritizeScan)
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	user, err := sess.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}
	who := analysis.Actor{Address: user.Address, ManagerName: user.ManagerName}

	inbox, err := sess.DefaultFolder(ctx, backend.FolderInbox)
	if err != nil {
		return nil, fmt.Errorf("failed to open inbox: %w", err)
	}
	msgs, err := s.messages(ctx, inbox, backend.Restriction{
		ReceivedSince: s.now().AddDate(0, 0, -days),
		SortBy:        backend.SortReceived,
		Descending:    true,
	}, s.formatterFor(ctx, sess))
	if err != nil {
		return nil, err
	}

	s.cache.Reset()
	entries := analysis.Prioritize(msgs, who, maxScan)
	for _, e := range entries {
		s.cache.Put(e.Ordinal, e.Message)
	}
	return &Prioritized{Days: days, Entries: entries}, nil
}

// ActionItem is one categorised thread.
type ActionItem struct {
	Ordinal  int
	Category analysis.Category
	Reason   analysis.Reason
	Message  *mail.Message
}

// Actionable is the result of ClassifyActionable.
type Actionable struct {
	Days  int
	At    time.Time
	Items []ActionItem
}

// ByCategory returns the items of one category in output order.
func (a *Actionable) ByCategory(c analysis.Category) []ActionItem {
	var out []ActionItem
	for _, it := range a.Items {
		if it.Category == c {
			out = append(out, it)
		}
	}
	return out
}

// ClassifyActionable sorts recent conversations into unread priority,
// awaiting reply and pending follow-up. Only categorised threads receive
// ordinals.
func (s *Service) ClassifyActionable(ctx context.Context, days int) (*Actionable, error) {
	if days < 1 || days > MaxActionableDays {
		return nil, invalid("days_to_scan", "'days_to_scan' must be an integer between 1 and %d.", MaxActionableDays)
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	who, err := s.identity(ctx, sess)
	if err != nil {
		return nil, err
	}
	now := s.now()
	threads, err := s.conversations(ctx, sess, days)
	if err != nil {
		return nil, err
	}

	s.cache.Reset()
	res := &Actionable{Days: days, At: now}
	for _, c := range analysis.Classify(threads, who, now) {
		if c.Category == analysis.CategoryNone {
			continue
		}
		last := c.Thread.Last()
		res.Items = append(res.Items, ActionItem{
			Ordinal:  s.cache.Add(last),
			Category: c.Category,
			Reason:   c.Reason,
			Message:  last,
		})
	}
	s.logger.Debug().Int("threads", len(threads)).Int("actionable", len(res.Items)).Msg("Classified conversations")
	return res, nil
}

// LoadEstimate is the result of EstimateLoad.
type LoadEstimate struct {
	Days    int
	At      time.Time
	Metrics analysis.Metrics
}

// EstimateLoad computes mailbox-wide metrics over the last days. It does
// not touch the ordinal cache.
func (s *Service) EstimateLoad(ctx context.Context, days int) (*LoadEstimate, error) {
	if days < 1 || days > MaxActionableDays {
		return nil, invalid("days_to_scan", "'days_to_scan' must be an integer between 1 and %d.", MaxActionableDays)
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closeSession(sess)

	who, err := s.identity(ctx, sess)
	if err != nil {
		return nil, err
	}
	threads, err := s.conversations(ctx, sess, days)
	if err != nil {
		return nil, err
	}
	return &LoadEstimate{Days: days, At: s.now(), Metrics: analysis.ComputeMetrics(threads, who)}, nil
}
