// Package retry runs operations with bounded exponential backoff. Only
// transient failures are retried; validation and configuration errors
// surface immediately.
package retry

import (
	"context"
	"time"

	"sublingo/internal/services"
)

// Policy controls how many attempts an operation gets and how the delay
// between them grows.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// sleep can be injected by tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a policy.
type Option func(*Policy)

// WithSleeper overrides how backoff waits are performed (useful for tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// NewPolicy builds a policy with sane floor values applied.
func NewPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, opts ...Option) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	p := Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		sleep:       contextSleep,
	}
	for i := range opts {
		opts[i](&p)
	}
	return p
}

// Do invokes op until it succeeds, exhausts the attempt budget, fails with a
// non-transient error, or the context ends. The last error is returned
// unwrapped so callers can still inspect its marker.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = contextSleep
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !services.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, p.delay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// delay computes the wait before the attempt following a 1-based attempt
// number: base, base*2, base*4, ... capped at MaxDelay.
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay < base {
		maxDelay = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return delay
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
