// Package reminders sends reminder emails to approved enrollees shortly
// before an event starts.
package reminders

import (
	"time"

	"github.com/corkboard/backend/internal/models"
)

// Window is a span of time-until-start in which an event gets a reminder.
// Both bounds are inclusive.
type Window struct {
	EmailType string
	Label     string
	From      time.Duration
	To        time.Duration
}

var (
	// OneHour covers events starting 0.9h to 1.1h from now.
	OneHour = Window{EmailType: models.EmailTypeReminder1h, Label: "1 hour", From: 54 * time.Minute, To: 66 * time.Minute}
	// OneDay covers events starting 23h to 25h from now.
	OneDay = Window{EmailType: models.EmailTypeReminder24h, Label: "24 hours", From: 23 * time.Hour, To: 25 * time.Hour}
)

// Windows in precedence order: an event matching both is reminded for the first.
var Windows = []Window{OneHour, OneDay}

// Contains reports whether an event starting at start is in w relative to now.
func (w Window) Contains(start, now time.Time) bool {
	d := start.Sub(now)
	return d >= w.From && d <= w.To
}

// Range returns the absolute start-date bounds of w relative to now.
func (w Window) Range(now time.Time) (from, to time.Time) {
	return now.Add(w.From), now.Add(w.To)
}

// Due is an event paired with the window it is due a reminder for.
type Due struct {
	Event  *models.Event
	Window Window
}

// SelectDueReminders picks the events due a reminder at now. Events outside
// every window are dropped.
func SelectDueReminders(events []*models.Event, now time.Time) []Due {
	var due []Due
	for _, e := range events {
		for _, w := range Windows {
			if w.Contains(e.StartDate, now) {
				due = append(due, Due{Event: e, Window: w})
				break
			}
		}
	}
	return due
}
