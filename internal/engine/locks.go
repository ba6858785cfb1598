package engine

import "sync"

// instanceLocks serializes work per instance ID: no two turns (or history
// appends) for the same instance may run concurrently, while different
// instances proceed fully independently.
type instanceLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the lock for the given instance and returns the matching
// unlock function.
func (l *instanceLocks) Lock(id string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
