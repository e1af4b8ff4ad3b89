package progress

import "time"

// SameDay reports whether a and b fall on the same calendar day in the
// server's local timezone. Pure; ignores the time-of-day entirely.
func SameDay(a, b time.Time) bool {
	a = a.Local()
	b = b.Local()
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// ConsecutiveDays reports whether a falls on the calendar day
// immediately after b. Uses calendar arithmetic rather than a fixed
// 24h offset, so month/year rollovers and DST transitions are handled.
func ConsecutiveDays(a, b time.Time) bool {
	return SameDay(a, b.Local().AddDate(0, 0, 1))
}
