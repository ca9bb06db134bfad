package engine

import (
	"sync"

	"quality-portal/document-control-backend/internal/documents"
)

// keyLocks provides per-document mutual exclusion. Unrelated documents process
// fully in parallel; the set of locks grows with the document set and is never
// evicted, which is bounded by the controlled-document corpus size.
type keyLocks struct {
	mu    sync.Mutex
	locks map[documents.Key]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[documents.Key]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use, and returns the
// unlock function.
func (k *keyLocks) Lock(key documents.Key) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
