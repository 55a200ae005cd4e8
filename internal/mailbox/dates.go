package mailbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

var clockLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15:04",
}

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDue resolves a due date such as "tomorrow", "next Friday" or
// "2024-10-31" relative to now. The result is midnight of that day.
func parseDue(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
			return t, nil
		}
	}

	switch strings.ToLower(text) {
	case "today":
		return startOfDay(now), nil
	case "tomorrow":
		return startOfDay(now).AddDate(0, 0, 1), nil
	}

	r, err := newDateParser().Parse(text, now)
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no date found in %q", text)
	}
	return startOfDay(r.Time.In(now.Location())), nil
}

// parseReminder combines a clock time such as "9:00 AM" with day.
func parseReminder(text string, day time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(text)); err == nil {
			y, m, d := day.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", text)
}

// dueWindow maps a task due filter onto a restriction.
func dueWindow(due string, now time.Time) (tasksWindow, bool) {
	today := startOfDay(now)
	switch due {
	case "today":
		return tasksWindow{before: endOfDay(now)}, true
	case "tomorrow":
		tomorrow := today.AddDate(0, 0, 1)
		return tasksWindow{after: tomorrow, before: endOfDay(tomorrow)}, true
	case "this week":
		monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
		return tasksWindow{after: monday, before: endOfDay(monday.AddDate(0, 0, 6))}, true
	case "all":
		return tasksWindow{}, true
	}
	return tasksWindow{}, false
}

type tasksWindow struct {
	after  time.Time
	before time.Time
}
