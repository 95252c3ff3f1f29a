package market

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes operations per entity id. Entries are reference
// counted and removed once the last holder releases, so the map does not
// grow with the lifetime of the process.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[uuid.UUID]*lockEntry)}
}

func (k *keyedMutex) Lock(id uuid.UUID) {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &lockEntry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

func (k *keyedMutex) Unlock(id uuid.UUID) {
	k.mu.Lock()
	e := k.entries[id]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
