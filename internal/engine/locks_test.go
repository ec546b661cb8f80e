package engine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceLocks_ReleasesEntries(t *testing.T) {
	var l instanceLocks

	for _, id := range []string{"a", "b", "c"} {
		unlock := l.lock(id)
		assert.Equal(t, 1, l.size())
		unlock()
	}
	assert.Zero(t, l.size(), "no entry outlives its last holder")
}

func TestInstanceLocks_SerializesSameID(t *testing.T) {
	var l instanceLocks
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("inst-1")
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, l.size())
}

func TestInstanceLocks_DistinctIDsDoNotBlock(t *testing.T) {
	var l instanceLocks

	unlockA := l.lock("a")
	done := make(chan struct{})
	go func() {
		l.lock("b")()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, l.size())
	unlockA()
	assert.Zero(t, l.size())
}

func TestEngine_LockTableEmptyAfterCommands(t *testing.T) {
	env := newTestEnv(t)

	for range 3 {
		inst := env.create(t, "review", "requester", "Level 3 pour")
		env.send(t, "requester", inst.ID, SendRequest{ActionID: "start"})
	}
	assert.Zero(t, env.eng.locks.size())
}
