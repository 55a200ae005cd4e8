package backend

import (
	"sort"
	"strings"
	"time"
)

// SortKey selects the field used to order Items results.
type SortKey string

const (
	SortNone     SortKey = ""
	SortReceived SortKey = "received"
	SortSent     SortKey = "sent"
	SortDue      SortKey = "due"
	SortStart    SortKey = "start"
)

// TimeRange is a closed interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Restriction filters and orders folder contents. Zero values disable a
// clause; clauses that do not apply to a record's kind are ignored.
type Restriction struct {
	// ReceivedSince keeps messages received on or after the instant.
	ReceivedSince time.Time
	// SentSince keeps messages sent on or after the instant.
	SentSince time.Time
	UnreadOnly bool
	// Terms keeps messages whose subject, sender or body contains any
	// term (case-insensitive).
	Terms []string
	// Subject keeps records whose subject equals the value exactly.
	Subject        string
	IncompleteOnly bool
	// DueBefore keeps tasks due on or before the instant.
	DueBefore time.Time
	// DueAfter keeps tasks due on or after the instant.
	DueAfter time.Time
	// Overlap keeps appointments intersecting the range.
	Overlap *TimeRange

	SortBy     SortKey
	Descending bool
}

// Match reports whether rec satisfies every clause.
func (r Restriction) Match(rec Record) bool {
	switch v := rec.(type) {
	case MessageRecord:
		return r.matchMessage(v)
	case TaskRecord:
		return r.matchTask(v)
	case AppointmentRecord:
		return r.matchAppointment(v)
	}
	return false
}

func (r Restriction) matchMessage(m MessageRecord) bool {
	if !r.ReceivedSince.IsZero() {
		at, ok := m.ReceivedAt()
		if !ok || at.Before(r.ReceivedSince) {
			return false
		}
	}
	if !r.SentSince.IsZero() {
		at, ok := m.SentAt()
		if !ok || at.Before(r.SentSince) {
			return false
		}
	}
	if r.UnreadOnly {
		if unread, err := m.Unread(); err != nil || !unread {
			return false
		}
	}
	if r.Subject != "" {
		if s, err := m.Subject(); err != nil || s != r.Subject {
			return false
		}
	}
	if len(r.Terms) > 0 && !r.matchTerms(m) {
		return false
	}
	return true
}

func (r Restriction) matchTerms(m MessageRecord) bool {
	var fields []string
	if s, err := m.Subject(); err == nil {
		fields = append(fields, s)
	}
	if from, err := m.Sender(); err == nil {
		fields = append(fields, from.Name, from.Address)
	}
	if b, err := m.Body(); err == nil {
		fields = append(fields, b)
	}
	for _, term := range r.Terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), term) {
				return true
			}
		}
	}
	return false
}

func (r Restriction) matchTask(rec TaskRecord) bool {
	t := rec.Task()
	if r.IncompleteOnly && t.Complete {
		return false
	}
	if r.Subject != "" && t.Subject != r.Subject {
		return false
	}
	if !r.DueBefore.IsZero() && (t.DueDate == nil || t.DueDate.After(r.DueBefore)) {
		return false
	}
	if !r.DueAfter.IsZero() && (t.DueDate == nil || t.DueDate.Before(r.DueAfter)) {
		return false
	}
	return true
}

func (r Restriction) matchAppointment(rec AppointmentRecord) bool {
	a := rec.Appointment()
	if r.Subject != "" && a.Subject != r.Subject {
		return false
	}
	if r.Overlap != nil {
		if a.Start.After(r.Overlap.End) || a.End.Before(r.Overlap.Start) {
			return false
		}
	}
	return true
}

// Apply filters recs and sorts the survivors according to r.
func (r Restriction) Apply(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if r.Match(rec) {
			out = append(out, rec)
		}
	}
	if r.SortBy == SortNone {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortValue(out[i], r.SortBy), sortValue(out[j], r.SortBy)
		if r.Descending {
			return a.After(b)
		}
		return a.Before(b)
	})
	return out
}

// noDueDate orders undated tasks after every dated one.
var noDueDate = time.Date(4501, 1, 1, 0, 0, 0, 0, time.UTC)

func sortValue(rec Record, key SortKey) time.Time {
	switch v := rec.(type) {
	case MessageRecord:
		var t time.Time
		switch key {
		case SortReceived:
			t, _ = v.ReceivedAt()
		case SortSent:
			t, _ = v.SentAt()
		}
		return t
	case TaskRecord:
		if key == SortDue {
			if due := v.Task().DueDate; due != nil {
				return *due
			}
			return noDueDate
		}
	case AppointmentRecord:
		if key == SortStart {
			return v.Appointment().Start
		}
	}
	return time.Time{}
}
