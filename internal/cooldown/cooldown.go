// Package cooldown throttles outbound contact per identity. The tracker is
// purely in-memory and best-effort: losing it on a crash only means a user
// might be contacted again early, never that correctness breaks.
package cooldown

import (
	"sync"
	"time"
)

// Tracker maps identity → last-contact time and enforces a minimum
// re-contact interval. Mutated by the pipeline consumer (RecordContact) and
// by the housekeeping task (Evict), so every access takes the lock.
type Tracker struct {
	mu       sync.RWMutex
	window   time.Duration
	grace    time.Duration
	contacts map[string]time.Time
	now      func() time.Time
}

// New creates a tracker with the given cooldown window and eviction grace.
func New(window, grace time.Duration) *Tracker {
	return &Tracker{
		window:   window,
		grace:    grace,
		contacts: make(map[string]time.Time),
		now:      time.Now,
	}
}

// NewWithClock creates a tracker with an injected clock for tests.
func NewWithClock(window, grace time.Duration, now func() time.Time) *Tracker {
	t := New(window, grace)
	t.now = now
	return t
}

// CanContact reports whether the identity was never contacted or the cooldown
// window has fully elapsed.
func (t *Tracker) CanContact(identity string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last, ok := t.contacts[identity]
	if !ok {
		return true
	}
	return t.now().Sub(last) >= t.window
}

// RecordContact overwrites the identity's last-contact timestamp.
func (t *Tracker) RecordContact(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contacts[identity] = t.now()
}

// Evict removes entries older than window+grace and returns how many were
// removed. Run periodically so memory stays bounded regardless of stream
// volume.
func (t *Tracker) Evict() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-(t.window + t.grace))
	removed := 0

	for identity, last := range t.contacts {
		if last.Before(cutoff) {
			delete(t.contacts, identity)
			removed++
		}
	}

	return removed
}

// Size returns the number of tracked identities.
func (t *Tracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.contacts)
}
