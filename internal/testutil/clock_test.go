package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_DefaultsToEpoch(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch, clock.Now(), "reading does not advance")
}

func TestDeterministicClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewDeterministicClock(start)

	assert.Equal(t, start.Add(time.Minute), clock.Advance(time.Minute))
	assert.Equal(t, start.Add(time.Minute).AddDate(0, 0, 2), clock.AdvanceDays(2))

	// Never goes backwards
	before := clock.Now()
	assert.Equal(t, before, clock.Advance(-time.Hour))
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})
	clock.AdvanceDays(3)

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("HKT", 8*60*60)
	clock := NewDeterministicClock(time.Date(2026, 5, 1, 8, 0, 0, 0, loc))
	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.Equal(t, 0, clock.Now().Hour())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(numGoroutines*time.Second), clock.Now())
}
