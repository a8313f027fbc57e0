package eventsub

import (
	"sync"
	"time"
)

// SubFlags reports which per-session subscriptions are active. A new session
// invalidates all of them.
type SubFlags struct {
	Follow    bool `json:"follow"`
	Subscribe bool `json:"subscribe"`
	Cheer     bool `json:"cheer"`
}

// Status is the read-only worker snapshot consumed by status pollers.
type Status struct {
	Connected bool      `json:"connected"`
	SessionID string    `json:"session_id"`
	Since     time.Time `json:"since"`
	LastError string    `json:"last_error"`
	Backoff   float64   `json:"backoff_s"`
	Subs      SubFlags  `json:"subs"`
}

// statusTracker guards the snapshot for concurrent reads. The worker is the
// only writer; external pollers get a copy, never the live structure.
type statusTracker struct {
	mu  sync.RWMutex
	cur Status
}

func (t *statusTracker) update(fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.cur)
}

func (t *statusTracker) snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur
}
