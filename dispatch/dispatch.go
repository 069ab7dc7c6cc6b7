package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Dispatcher is the shared policy for outbound platform calls: a counting
// semaphore bounds parallelism, a minimum spacing keeps tight loops from
// hammering the platform, and throttling errors are retried with exponential
// backoff up to a bounded number of attempts. The reconciler, the vote
// engine, and bulk notifications all share one instance so neither needs to
// know the others exist.
type Dispatcher struct {
	sem        chan struct{}
	minSpacing time.Duration
	maxRetries int

	mu       sync.Mutex
	lastCall time.Time
}

// New creates a Dispatcher. Zero or negative arguments fall back to the
// defaults (5 concurrent calls, 200ms spacing, 3 attempts).
func New(concurrency int, minSpacing time.Duration, maxRetries int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 5
	}
	if minSpacing <= 0 {
		minSpacing = 200 * time.Millisecond
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Dispatcher{
		sem:        make(chan struct{}, concurrency),
		minSpacing: minSpacing,
		maxRetries: maxRetries,
	}
}

// Do runs fn under the concurrency limit, spacing calls apart and retrying
// throttled calls with exponential backoff. The final error is returned when
// retries are exhausted; non-throttling errors are returned as-is after the
// first attempt.
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.sem }()
	// The select picks arbitrarily when both channels are ready, so a
	// cancelled context can still win the semaphore. Never run fn then.
	if err := ctx.Err(); err != nil {
		return err
	}

	backoff := d.minSpacing
	var err error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if waitErr := d.pace(ctx); waitErr != nil {
			return waitErr
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !IsThrottled(err) {
			return err
		}

		wait := backoff
		if ra := RetryAfter(err); ra > wait {
			wait = ra
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("gave up after %d throttled attempts: %w", d.maxRetries, err)
}

// pace blocks until minSpacing has elapsed since the previous call issued
// through this dispatcher.
func (d *Dispatcher) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	now := time.Now()
	next := d.lastCall.Add(d.minSpacing)
	if next.Before(now) {
		next = now
	}
	d.lastCall = next
	d.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
