package auth

import (
	"sync"
	"time"
)

// lockoutTracker counts failed credential checks per handle inside a sliding
// window and locks the handle out once the threshold is crossed. State is
// in-memory; a restart forgives outstanding strikes.
type lockoutTracker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	duration  time.Duration
	entries   map[string]*lockoutEntry
}

type lockoutEntry struct {
	failures    []time.Time
	lockedUntil time.Time
}

func newLockoutTracker(threshold int, window, duration time.Duration) *lockoutTracker {
	return &lockoutTracker{
		threshold: threshold,
		window:    window,
		duration:  duration,
		entries:   make(map[string]*lockoutEntry),
	}
}

// lockedFor returns how long the handle stays locked, zero when it may try.
func (t *lockoutTracker) lockedFor(handle string, now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[handle]
	if !ok {
		return 0
	}
	if now.Before(e.lockedUntil) {
		return e.lockedUntil.Sub(now)
	}
	return 0
}

// recordFailure adds a strike and reports whether the handle just crossed
// into lockout.
func (t *lockoutTracker) recordFailure(handle string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[handle]
	if !ok {
		e = &lockoutEntry{}
		t.entries[handle] = e
	}
	cutoff := now.Add(-t.window)
	kept := e.failures[:0]
	for _, ts := range e.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.failures = append(kept, now)
	if len(e.failures) >= t.threshold && !now.Before(e.lockedUntil) {
		e.lockedUntil = now.Add(t.duration)
		e.failures = e.failures[:0]
		return true
	}
	return false
}

// clear wipes strikes after a successful login.
func (t *lockoutTracker) clear(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, handle)
}
