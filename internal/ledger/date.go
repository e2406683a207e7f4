package ledger

import (
	"fmt"
	"time"
)

// DateLayout is the ISO date format used for every Date field.
const DateLayout = "2006-01-02"

// ParseDate parses an ISO date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t as an ISO date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// WeekdayName returns the three-letter day name ("Mon") used as the
// weekday rollup key.
func WeekdayName(t time.Time) string {
	return t.Weekday().String()[:3]
}

// StartOfWeek returns the Monday on or before t, truncated to midnight.
func StartOfWeek(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
