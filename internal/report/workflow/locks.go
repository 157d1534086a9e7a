package workflow

import (
	"sync"

	"github.com/medwatch/platform/internal/shared/types"
)

// lockTable hands out one mutex per report so concurrent operations on the
// same report serialize while unrelated reports proceed in parallel.
// Entries are reference counted and dropped when the last holder releases.
type lockTable struct {
	mu    sync.Mutex
	locks map[types.ID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[types.ID]*lockEntry)}
}

// acquire blocks until the report's lock is held and returns the release
// function.
func (t *lockTable) acquire(id types.ID) func() {
	t.mu.Lock()
	entry, ok := t.locks[id]
	if !ok {
		entry = &lockEntry{}
		t.locks[id] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}
