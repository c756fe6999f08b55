// Package backoff provides bounded retries with exponential delay and
// jitter. Only errors the caller classifies as retryable are retried;
// everything else aborts immediately.
package backoff

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Policy wraps an operation with retry semantics. Zero-value policies are
// not usable; construct with New.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryable   func(error) bool
	sleep       func(context.Context, time.Duration) error
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts bounds the total number of attempts (first try included).
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithDelays sets the base and cap for the exponential schedule.
func WithDelays(base, max time.Duration) Option {
	return func(p *Policy) {
		if base > 0 {
			p.baseDelay = base
		}
		if max > 0 {
			p.maxDelay = max
		}
	}
}

// WithSleep replaces the delay function, letting tests run without waiting.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Policy) {
		p.sleep = sleep
	}
}

// New builds a Policy. The retryable classifier decides which errors are
// worth another attempt.
func New(retryable func(error) bool, opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		retryable:   retryable,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do runs fn until it succeeds, fails terminally, exhausts the attempt
// budget, or the context is done. The last error is returned wrapped so
// callers can still classify it.
func (p *Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) {
			return lastErr
		}
		if attempt == p.maxAttempts {
			break
		}
		if err := p.sleep(ctx, p.delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("retry budget of %d attempts exhausted: %w", p.maxAttempts, lastErr)
}

// delay computes the pause after the given attempt: exponential growth
// capped at maxDelay, with half-width jitter so synchronized clients spread
// out.
func (p *Policy) delay(attempt int) time.Duration {
	d := p.baseDelay << (attempt - 1)
	if d > p.maxDelay || d <= 0 {
		d = p.maxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
