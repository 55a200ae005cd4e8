package analysis

import (
	"strings"
	"time"

	"github.com/deskmail/deskmail/internal/mail"
)

// Category is an actionable bucket. A thread lands in at most one.
type Category string

const (
	CategoryNone            Category = ""
	CategoryUnreadPriority  Category = "unread_priority"
	CategoryAwaitingReply   Category = "awaiting_reply"
	CategoryPendingFollowUp Category = "pending_follow_up"
)

// Reason explains an unread-priority classification.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonManager Reason = "manager"
	ReasonVIP     Reason = "vip category"
	ReasonUrgent  Reason = "urgent keyword"
	ReasonUnread  Reason = "unread message"
)

// FollowUpAfter is how long my unanswered question waits before it becomes
// a pending follow-up.
const FollowUpAfter = 48 * time.Hour

// Classification is the category assigned to one thread.
type Classification struct {
	Thread   *Thread
	Category Category
	Reason   Reason
}

// ClassifyThread applies the rules in order and stops at the first match:
// unread priority, then awaiting reply, then pending follow-up.
func ClassifyThread(t *Thread, who Actor, now time.Time) (Category, Reason) {
	last := t.Last()
	mine := who.IsMe(last)

	if last.Unread && !mine {
		return CategoryUnreadPriority, unreadReason(last, who)
	}
	if !mine && HasQuestion(last.Body) {
		return CategoryAwaitingReply, ReasonNone
	}
	if mine && now.Sub(last.EffectiveTime()) > FollowUpAfter && HasQuestion(last.Body) {
		return CategoryPendingFollowUp, ReasonNone
	}
	return CategoryNone, ReasonNone
}

func unreadReason(m *mail.Message, who Actor) Reason {
	switch {
	case who.IsManager(m):
		return ReasonManager
	case strings.Contains(strings.ToLower(m.Categories), "vip"):
		return ReasonVIP
	case HasUrgentKeyword(m.Subject):
		return ReasonUrgent
	default:
		return ReasonUnread
	}
}

// Classify assigns a category to every thread, preserving thread order.
func Classify(threads []*Thread, who Actor, now time.Time) []Classification {
	out := make([]Classification, 0, len(threads))
	for _, t := range threads {
		cat, reason := ClassifyThread(t, who, now)
		out = append(out, Classification{Thread: t, Category: cat, Reason: reason})
	}
	return out
}
