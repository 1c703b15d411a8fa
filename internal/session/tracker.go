package session

import (
	"sync"
	"time"
)

// Tracker is the advisory in-memory set of recently active sessions. It
// protects sessions mid-request from eviction when their stored
// last_activity is stale. It is never consulted for correctness decisions.
type Tracker struct {
	mu     sync.Mutex
	active map[string]time.Time
}

// NewTracker creates an empty activity tracker.
func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]time.Time)}
}

// Touch marks a session as recently active.
func (t *Tracker) Touch(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[sessionID] = time.Now()
}

// Release removes a session from the active set.
func (t *Tracker) Release(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, sessionID)
}

// IsActive reports whether the session was touched within the grace window.
// Stale entries are dropped as a side effect.
func (t *Tracker) IsActive(sessionID string, grace time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	touched, ok := t.active[sessionID]
	if !ok {
		return false
	}
	if time.Since(touched) > grace {
		delete(t.active, sessionID)
		return false
	}
	return true
}
