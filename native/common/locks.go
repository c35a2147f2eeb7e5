package common

import (
	"errors"
	"sync"
)

// ErrEntryBusy is returned when a second operation targets an entry that is
// already mid-transition. Overlapping and nested invocations are rejected
// rather than queued so a caller can never observe a half-applied transition.
var ErrEntryBusy = errors.New("entry operation in progress")

// EntryGuard serialises state transitions per entry key. Acquire fails fast
// instead of blocking, which doubles as a re-entrancy check: an operation that
// calls back into the same entry sees ErrEntryBusy.
type EntryGuard struct {
	mu    sync.Mutex
	inUse map[[32]byte]struct{}
}

func NewEntryGuard() *EntryGuard {
	return &EntryGuard{inUse: make(map[[32]byte]struct{})}
}

// Acquire marks the entry as busy. The returned release function must be
// called exactly once when the transition has been committed or abandoned.
func (g *EntryGuard) Acquire(id [32]byte) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inUse[id]; busy {
		return nil, ErrEntryBusy
	}
	g.inUse[id] = struct{}{}
	released := false
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if !released {
			delete(g.inUse, id)
			released = true
		}
	}, nil
}
