// Package timeutil provides calendar-day helpers for due dates.
// A due date is a civil date: midnight UTC of the calendar day as seen in the
// student's configured location. All "today" comparisons go through a
// Calendar so that the day boundary follows the student, not the server.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultTimezone is used when the configured timezone cannot be loaded.
const DefaultTimezone = "Asia/Almaty"

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// Calendar resolves civil dates in a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar creates a Calendar for loc. A nil loc means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// LoadCalendar creates a Calendar from an IANA timezone name, falling back
// to UTC+5 (Almaty, no DST) when the zone database is unavailable.
func LoadCalendar(name string) Calendar {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.FixedZone(name, 5*60*60)
	}
	return Calendar{loc: loc}
}

// Location returns the calendar location.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// DateOf returns the civil date of t in the calendar location.
func (c Calendar) DateOf(t time.Time) time.Time {
	local := t.In(c.Location())
	return Date(local.Year(), local.Month(), local.Day())
}

// Today returns the civil date of now.
func (c Calendar) Today(now time.Time) time.Time {
	return c.DateOf(now)
}

// Tomorrow returns the civil date after now.
func (c Calendar) Tomorrow(now time.Time) time.Time {
	return c.DateOf(now).AddDate(0, 0, 1)
}

// StartOfDay returns the start of the local day containing t.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location())
}

// StartOfDate returns the local midnight of a civil date.
func (c Calendar) StartOfDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.Location())
}

// EndOfDay returns the last nanosecond of the local day containing t.
func (c Calendar) EndOfDay(t time.Time) time.Time {
	return c.StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Date creates a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
// Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	a = Date(a.Year(), a.Month(), a.Day())
	b = Date(b.Year(), b.Month(), b.Day())
	return int(b.Sub(a).Hours() / 24)
}

// WholeDaysSince returns floor((now - t) / 24h). Negative spans round
// toward negative infinity.
func WholeDaysSince(t, now time.Time) int {
	d := now.Sub(t)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// FormatDateStr formats a civil date as YYYY-MM-DD.
func FormatDateStr(t time.Time) string {
	return t.Format(FormatDate)
}

// ParseDate parses YYYY-MM-DD into a civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(FormatDate, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q: %w", s, err)
	}
	return t, nil
}
