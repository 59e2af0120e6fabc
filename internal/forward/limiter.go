package forward

import (
	"sync"
	"time"
)

// Limiter lets one event through per interval. Times come from the caller,
// so samples are judged by when they arrived rather than when they are
// processed.
type Limiter struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
	seen bool
}

// NewLimiter returns a Limiter; an interval <= 0 allows everything.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Allow reports whether an event at t may pass, and records it if so.
func (l *Limiter) Allow(t time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen && t.Sub(l.last) < l.interval {
		return false
	}
	l.last = t
	l.seen = true
	return true
}
