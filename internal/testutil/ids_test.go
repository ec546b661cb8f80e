package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator_Sequential(t *testing.T) {
	gen := NewSequenceGenerator("step")

	assert.Equal(t, "step-0001", gen.Generate())
	assert.Equal(t, "step-0002", gen.Generate())
	assert.Equal(t, "step-0003", gen.Generate())
}

func TestSequenceGenerator_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequenceGenerator("")
	assert.Equal(t, "id-0001", gen.Generate())
}

func TestSequenceGenerator_Reset(t *testing.T) {
	gen := NewSequenceGenerator("x")
	gen.Generate()
	gen.Generate()

	gen.Reset()
	assert.Equal(t, "x-0001", gen.Generate())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceGenerator("t")
	const numGoroutines = 10
	const callsPerGoroutine = 100

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				id := gen.Generate()
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
