package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates readable sequential ids: "id-0001", "id-0002", ...
//
// This enables deterministic test execution and golden snapshot comparison.
// The same scenario with a fresh SequenceGenerator produces byte-identical
// instances and activity logs.
//
// Unlike engine.FixedGenerator, which panics once its list runs out, this
// generator never exhausts.
//
// Thread-safety: SequenceGenerator is safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix.
// If prefix is empty, ids start with "id".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id. Implements engine.IDGenerator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
