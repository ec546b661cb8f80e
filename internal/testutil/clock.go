package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of DeterministicClock: a Monday morning.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// DeterministicClock provides a thread-safe wall clock for tests that only
// moves when told to.
//
// It satisfies engine.Clock. Reset returns it to its start time so the same
// scenario can run multiple times with identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

// NewDeterministicClock creates a clock reading start, or Epoch when start
// is zero.
func NewDeterministicClock(start time.Time) *DeterministicClock {
	if start.IsZero() {
		start = Epoch
	}
	start = start.UTC()
	return &DeterministicClock{start: start, now: start}
}

// Now returns the current time without advancing it.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
// Negative durations are ignored so the clock never goes backwards.
func (c *DeterministicClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// AdvanceDays moves the clock forward by whole days.
func (c *DeterministicClock) AdvanceDays(n int) time.Time {
	return c.Advance(time.Duration(n) * 24 * time.Hour)
}

// Reset returns the clock to its start time.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
