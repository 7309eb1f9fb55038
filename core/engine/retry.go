package engine

import (
	"context"
	"math"
	"time"
)

// RetryPolicy retries an operation on transient failure kinds with
// exponential backoff. Any non-transient failure propagates immediately,
// since retrying it only wastes quota and delays failure reporting.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	// BackoffBase is the backoff base in seconds; the wait before retry n is
	// BackoffBase^n seconds.
	BackoffBase float64

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a policy with the given bounds. Non-positive
// arguments fall back to 3 retries with base 2.
func NewRetryPolicy(maxRetries int, backoffBase float64) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 3
	}
	if backoffBase <= 0 {
		backoffBase = 2
	}
	return &RetryPolicy{MaxRetries: maxRetries, BackoffBase: backoffBase, sleep: sleepCtx}
}

// Do runs op, retrying transient failures until MaxRetries is exhausted. The
// final error is always surfaced, never swallowed.
func (p *RetryPolicy) Do(ctx context.Context, op func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			return err
		}

		wait := time.Duration(math.Pow(p.BackoffBase, float64(attempt+1)) * float64(time.Second))
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
	}
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
