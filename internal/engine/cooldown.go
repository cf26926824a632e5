package engine

import (
	"sync"
	"time"
)

// EventTracker rate-limits repeated events per key. Used for the
// per-student mark cooldown and the per-camera alert cooldown.
type EventTracker struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

// NewEventTracker creates a tracker with the given minimum spacing.
func NewEventTracker(interval time.Duration) *EventTracker {
	return &EventTracker{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Allowed reports whether the key is outside its cooldown window. It
// does not record anything; call Mark once the event actually happened.
func (t *EventTracker) Allowed(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, seen := t.last[key]
	return !seen || now.Sub(last) >= t.interval
}

// Mark records that the event fired for the key.
func (t *EventTracker) Mark(key string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[key] = now
}
