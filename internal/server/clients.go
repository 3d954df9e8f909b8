package server

import (
	"sync"
	"time"
)

// ClientTracker remembers which companions probed /health recently. A
// companion counts as connected until it stays silent for longer than the
// timeout and a sweep removes it.
type ClientTracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	timeout  time.Duration
	now      func() time.Time

	// onChange receives the new count whenever it changes (may be nil).
	onChange func(count int)
}

// NewClientTracker creates a tracker.
func NewClientTracker(timeout time.Duration, now func() time.Time, onChange func(int)) *ClientTracker {
	if now == nil {
		now = time.Now
	}
	return &ClientTracker{
		lastSeen: make(map[string]time.Time),
		timeout:  timeout,
		now:      now,
		onChange: onChange,
	}
}

// Touch records a probe from id and reports whether id was new.
func (t *ClientTracker) Touch(id string) bool {
	t.mu.Lock()
	_, existed := t.lastSeen[id]
	t.lastSeen[id] = t.now()
	count := len(t.lastSeen)
	t.mu.Unlock()

	if !existed && t.onChange != nil {
		t.onChange(count)
	}
	return !existed
}

// Sweep removes clients silent for longer than the timeout and returns how
// many were removed.
func (t *ClientTracker) Sweep() int {
	t.mu.Lock()
	cutoff := t.now().Add(-t.timeout)
	removed := 0
	for id, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			delete(t.lastSeen, id)
			removed++
		}
	}
	count := len(t.lastSeen)
	t.mu.Unlock()

	if removed > 0 && t.onChange != nil {
		t.onChange(count)
	}
	return removed
}

// Count returns the number of tracked clients.
func (t *ClientTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}
