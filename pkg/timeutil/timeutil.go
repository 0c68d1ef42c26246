// Package timeutil provides clock and day-arithmetic helpers shared by the
// progress engine, the snapshot worker and the CLI.
// All day counts are whole elapsed 24h periods, never calendar-date differences.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Day is the length of one counted day.
const Day = 24 * time.Hour

// DateLayout is the layout accepted by ParseDate.
const DateLayout = "2006-01-02"

// Clock abstracts "now" so computations can be replayed at any instant.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock in UTC.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.At
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}

// ElapsedDays returns the number of whole days between from and to,
// truncated toward zero. It is negative when to is before from.
func ElapsedDays(from, to time.Time) int {
	return int(to.Sub(from) / Day)
}

// ElapsedDaysNonNegative is ElapsedDays floored at zero.
func ElapsedDaysNonNegative(from, to time.Time) int {
	d := ElapsedDays(from, to)
	if d < 0 {
		return 0
	}
	return d
}

// DurationDays converts a duration into whole days, floored at zero.
func DurationDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / Day)
}

// Earliest returns the earlier of a and b.
func Earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// Latest returns the later of a and b.
func Latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// LoadLocation resolves an IANA zone name, accepting "UTC" and "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utc") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: unknown time zone %q: %w", name, err)
	}
	return loc, nil
}

// ParseDate parses either a YYYY-MM-DD date (midnight in loc) or an RFC3339 timestamp.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: cannot parse %q as date or RFC3339 timestamp", s)
	}
	return t, nil
}

// StartOfDay returns midnight of t's date in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatDate formats t as YYYY-MM-DD in t's location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
