// Package timeutil provides UTC day arithmetic for spaced-repetition
// scheduling. All engine timestamps are stored and compared in UTC;
// review intervals are measured in whole days.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Day is the length of one scheduling day.
const Day = 24 * time.Hour

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// StartOfDay returns the start of the UTC day (00:00:00) containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the end of the UTC day (23:59:59.999999999) containing t.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// AddDays returns t shifted by n scheduling days.
func AddDays(t time.Time, n int) time.Time {
	return t.UTC().Add(time.Duration(n) * Day)
}

// DaysBetween returns the number of whole UTC days between two times.
// The result is non-negative regardless of argument order.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1) / Day)
	if days < 0 {
		days = -days
	}
	return days
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// OverdueBy returns how far past due a deadline is at now.
// Negative for deadlines still in the future.
func OverdueBy(due, now time.Time) time.Duration {
	return now.Sub(due)
}

// IsDue checks if a deadline has been reached at now.
func IsDue(due, now time.Time) bool {
	return !due.After(now)
}

// Common timestamp formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a UTC date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) as a UTC time.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}
