// Package gate serializes assistant work per user. Each user may have
// at most one invocation in flight; a second attempt is rejected
// immediately rather than queued, so the platform handler can answer
// with a busy notice.
package gate

import "sync"

// Gate tracks which users currently have work in flight.
type Gate struct {
	mu   sync.Mutex
	busy map[int64]bool
}

// New returns an empty gate.
func New() *Gate {
	return &Gate{busy: make(map[int64]bool)}
}

// TryAcquire claims the user's slot. Returns false without blocking if
// the user already has work in flight.
func (g *Gate) TryAcquire(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy[userID] {
		return false
	}
	g.busy[userID] = true
	return true
}

// Release frees the user's slot. Safe to call for a user that holds
// nothing.
func (g *Gate) Release(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, userID)
}

// InFlight returns how many users have work in flight.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.busy)
}
