// Package retrylimit provides a paced, bounded-retry executor for
// calls against external services that must never become a
// backpressure source for the caller.
package retrylimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces deliveries: at most one in flight (callers serialize
// through Wait) with a minimum spacing between them.
type Limiter struct {
	mu  sync.Mutex
	lim *rate.Limiter
}

// NewLimiter builds a limiter enforcing minSpacing between permits.
func NewLimiter(minSpacing time.Duration) *Limiter {
	if minSpacing <= 0 {
		minSpacing = time.Second
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(minSpacing), 1)}
}

// Wait blocks until the next permit or context cancellation. The
// internal mutex gives strict one-at-a-time ordering on top of the
// token bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lim.Wait(ctx)
}

// Config bounds a retried call.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultConfig is a small, fixed-delay retry budget.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Delay: 2 * time.Second}
}

// Do runs fn up to cfg.MaxAttempts times with a fixed delay between
// attempts, waiting on lim before each one. The final error is
// returned once the budget is exhausted; the caller decides whether to
// drop or escalate.
func Do(ctx context.Context, lim *Limiter, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
