// Package analysis groups messages into conversations and derives the
// per-thread status, category and mailbox-wide load metrics from them.
package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskmail/deskmail/internal/mail"
)

// Thread is every in-window message sharing a conversation id, oldest first.
type Thread struct {
	ConversationID string
	Items          []*mail.Message
}

// Last returns the most recent message of the thread.
func (t *Thread) Last() *mail.Message {
	return t.Items[len(t.Items)-1]
}

// Group buckets messages by conversation id. Threads keep the order in
// which their first message was seen; messages without a conversation id
// are dropped.
func Group(msgs []*mail.Message, logger zerolog.Logger) []*Thread {
	index := make(map[string]*Thread)
	var threads []*Thread

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.ConversationID == "" {
			logger.Warn().Str("id", m.ID).Msg("Message has no conversation id, skipping")
			continue
		}
		t, ok := index[m.ConversationID]
		if !ok {
			t = &Thread{ConversationID: m.ConversationID}
			index[m.ConversationID] = t
			threads = append(threads, t)
		}
		t.Items = append(t.Items, m)
	}

	for _, t := range threads {
		sortThread(t.Items)
	}
	return threads
}

// sortThread orders ascending by effective time. Equal timestamps fall back
// to the entry id so the order does not depend on backend enumeration.
func sortThread(items []*mail.Message) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].EffectiveTime(), items[j].EffectiveTime()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return items[i].ID < items[j].ID
	})
}

// Flatten returns every message of every thread.
func Flatten(threads []*Thread) []*mail.Message {
	var out []*mail.Message
	for _, t := range threads {
		out = append(out, t.Items...)
	}
	return out
}

// Actor identifies the mailbox owner for "which side is me" decisions.
type Actor struct {
	Address     string
	ManagerName string
}

// IsMe reports whether m was written by the mailbox owner: either it sits in
// Sent Items or its sender address contains the owner's address.
func (a Actor) IsMe(m *mail.Message) bool {
	return m.IsSent || m.FromAddress(a.Address)
}

// IsManager does a case-insensitive substring match of the manager name
// against the sender display name.
func (a Actor) IsManager(m *mail.Message) bool {
	manager := strings.ToLower(strings.TrimSpace(a.ManagerName))
	if manager == "" {
		return false
	}
	return strings.Contains(strings.ToLower(m.SenderName), manager)
}

// wholeDays truncates the elapsed time to full days.
func wholeDays(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
