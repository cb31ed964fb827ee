package core

import "time"

// Day is the length of one checkpoint step.
const Day = 24 * time.Hour

// Epoch is the datestamp of the synthetic zero-balance checkpoint.
var Epoch = time.Unix(0, 0).UTC()

// TruncateDay returns UTC midnight of the day containing t.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the first instant after the UTC day containing t.
func EndOfDay(t time.Time) time.Time {
	return TruncateDay(t).Add(Day)
}

// NewDate creates a UTC midnight date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
