package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Week is a Monday-to-Sunday calendar week. Start and End are UTC midnights.
type Week struct {
	Start time.Time
	End   time.Time
}

func (w Week) StartString() string { return w.Start.Format(DateLayout) }
func (w Week) EndString() string   { return w.End.Format(DateLayout) }

// Contains reports whether t falls on a day of the week.
func (w Week) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStartOf returns the Monday of the calendar week containing t.
func WeekStartOf(t time.Time) time.Time {
	d := Day(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -offset)
}

func WeekOf(t time.Time) Week {
	start := WeekStartOf(t)
	return Week{Start: start, End: start.AddDate(0, 0, 6)}
}

// WeeksInRange returns every calendar week overlapping [start, end], in order.
func WeeksInRange(start, end time.Time) []Week {
	if Day(end).Before(Day(start)) {
		return nil
	}
	var weeks []Week
	last := WeekStartOf(end)
	for ws := WeekStartOf(start); !ws.After(last); ws = ws.AddDate(0, 0, 7) {
		weeks = append(weeks, Week{Start: ws, End: ws.AddDate(0, 0, 6)})
	}
	return weeks
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Message: "must be in YYYY-MM-DD format"}
	}
	return t, nil
}
