package engine

import (
	"context"
	"sync"
	"time"
)

// Limiter throttles outbound calls to a maximum calls-per-second against one
// external system. Rate limits are per external system, not global, so each
// integration gets its own instance; the limiter does not coordinate across
// processes.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter for the given calls-per-second budget.
// A non-positive budget disables throttling.
func NewLimiter(callsPerSecond float64) *Limiter {
	l := &Limiter{now: time.Now, sleep: sleepCtx}
	if callsPerSecond > 0 {
		l.interval = time.Duration(float64(time.Second) / callsPerSecond)
	}
	return l
}

// Wait blocks until at least one interval has elapsed since the previous call
// it tracked. Callers are serialized, which is what bounds the aggregate rate.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.last.IsZero() {
		if wait := l.interval - now.Sub(l.last); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
			now = l.now()
		}
	}
	l.last = now
	return nil
}
