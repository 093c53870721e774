// Package timeutil provides UTC day arithmetic for XP day buckets and streak
// tracking. All learner-facing day boundaries are UTC midnights so that two
// devices in different timezones agree on what "today" means.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// StartOfDay returns the UTC midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// IsYesterday reports whether candidate falls on the UTC day immediately
// before the day containing now.
func IsYesterday(candidate, now time.Time) bool {
	return StartOfDay(candidate).Equal(StartOfDay(now).AddDate(0, 0, -1))
}

// DaysBetween returns the number of whole UTC days from a to b.
// Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)).Hours() / 24)
}
