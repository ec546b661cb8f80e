package engine

import "sync"

// instanceLocks serializes commands per instance id. An entry lives only
// while some command holds or waits for it, so the table stays as large as
// the number of instances currently being changed.
type instanceLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until id is free and returns the matching unlock.
func (l *instanceLocks) lock(id string) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*lockEntry)
	}
	ent, ok := l.entries[id]
	if !ok {
		ent = &lockEntry{}
		l.entries[id] = ent
	}
	ent.refs++
	l.mu.Unlock()

	ent.mu.Lock()
	return func() {
		ent.mu.Unlock()
		l.mu.Lock()
		ent.refs--
		if ent.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

// size returns the number of live entries.
func (l *instanceLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
