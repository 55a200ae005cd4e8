package analysis

import (
	"math"
	"time"

	"github.com/deskmail/deskmail/internal/mail"
)

// Metrics is the mailbox-wide snapshot computed over a set of threads.
type Metrics struct {
	UnreadUrgent        int           `json:"unread_urgent_count"`
	FlaggedThreads      int           `json:"flagged_threads_count"`
	TotalDelay          time.Duration `json:"-"`
	Replies             int           `json:"replied_to_count"`
	ActiveConversations int           `json:"total_active_conversations"`
}

// ComputeMetrics walks every thread once.
func ComputeMetrics(threads []*Thread, who Actor) Metrics {
	m := Metrics{ActiveConversations: len(threads)}

	for _, t := range threads {
		last := t.Last()
		if last.Unread && !who.IsMe(last) && HasUrgentKeyword(last.Subject) {
			m.UnreadUrgent++
		}

		for _, item := range t.Items {
			if item.Flag == mail.FlagFlagged {
				m.FlaggedThreads++
				break
			}
		}

		delay, n := responseDelay(t.Items, who)
		m.TotalDelay += delay
		m.Replies += n
	}
	return m
}

// responseDelay pairs each inbound message with the first later message of
// mine in the same thread.
func responseDelay(items []*mail.Message, who Actor) (time.Duration, int) {
	var total time.Duration
	var pairs int
	for i, in := range items {
		if who.IsMe(in) {
			continue
		}
		inAt := in.EffectiveTime()
		for _, out := range items[i+1:] {
			if who.IsMe(out) && out.EffectiveTime().After(inAt) {
				total += out.EffectiveTime().Sub(inAt)
				pairs++
				break
			}
		}
	}
	return total, pairs
}

// AverageDelayHours is the mean reply delay, or 0 without any reply.
func (m Metrics) AverageDelayHours() float64 {
	if m.Replies == 0 {
		return 0
	}
	return m.TotalDelay.Hours() / float64(m.Replies)
}

// LoadScore is the composite score for this snapshot.
func (m Metrics) LoadScore() float64 {
	return LoadScore(m.UnreadUrgent, m.FlaggedThreads, m.AverageDelayHours())
}

// LoadScore weighs unread urgent threads (0.15 each, at most 0.5), flagged
// threads (0.05 each, at most 0.3) and the average reply delay (0.1 per day,
// at most 0.2). The result is clamped to [0, 1] and rounded to two decimals.
func LoadScore(unreadUrgent, flagged int, avgDelayHours float64) float64 {
	score := math.Min(0.15*float64(unreadUrgent), 0.5) +
		math.Min(0.05*float64(flagged), 0.3) +
		math.Min(avgDelayHours/24*0.1, 0.2)
	return Round2(math.Max(0, math.Min(1, score)))
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
