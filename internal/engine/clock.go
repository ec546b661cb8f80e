package engine

import "time"

// Clock supplies wall time for step, audit and due-date stamps.
// Tests substitute a deterministic clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// startOfDay truncates t to midnight UTC. Due dates and overdue checks work
// on whole days.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dueDate is the sent day plus dueDays, or zero when the action sets no
// deadline.
func dueDate(sentAt time.Time, dueDays int) time.Time {
	if dueDays <= 0 {
		return time.Time{}
	}
	return startOfDay(sentAt).AddDate(0, 0, dueDays)
}
