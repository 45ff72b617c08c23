// Package ratelimit provides the token bucket shared by every annotation
// worker to stay inside the vision service's request quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"golang.org/x/time/rate"
)

// Limiter is a token bucket with a fixed capacity that refills continuously
// at a configured number of tokens per minute. It is safe for concurrent use;
// no two callers can obtain the same token.
type Limiter struct {
	lim             *rate.Limiter
	capacity        int
	refillPerMinute float64
}

// New creates a full bucket. A refill rate of zero means tokens are never
// replenished once drained.
func New(capacity int, refillPerMinute float64) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: rate limit capacity must be positive, got %d",
			domain.ErrInvalidInput, capacity)
	}
	if refillPerMinute < 0 {
		return nil, fmt.Errorf("%w: refill rate cannot be negative, got %v",
			domain.ErrInvalidInput, refillPerMinute)
	}

	return &Limiter{
		lim:             rate.NewLimiter(rate.Limit(refillPerMinute/60.0), capacity),
		capacity:        capacity,
		refillPerMinute: refillPerMinute,
	}, nil
}

// NewFromConfig creates a Limiter from the rate_limit configuration section.
func NewFromConfig(cfg config.RateLimitConfig) (*Limiter, error) {
	return New(cfg.Capacity, cfg.RefillPerMinute)
}

// TryAcquire takes a token if one is available and never blocks.
func (l *Limiter) TryAcquire() bool {
	return l.lim.Allow()
}

// WaitForToken blocks until a token is available or timeout elapses.
//
// When the token cannot become available within the timeout (for example a
// drained bucket with no refill) it returns immediately instead of sleeping
// for the whole timeout. Timeouts wrap domain.ErrRateLimitTimeout;
// cancellation of ctx itself is returned as ctx.Err().
func (l *Limiter) WaitForToken(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.TryAcquire() {
		return nil
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: no token available", domain.ErrRateLimitTimeout)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.lim.Wait(waitCtx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) || waitCtx.Err() != nil {
			return fmt.Errorf("%w after %s", domain.ErrRateLimitTimeout, timeout)
		}
		return fmt.Errorf("%w: %v", domain.ErrRateLimitTimeout, err)
	}
	return nil
}

// Available returns the current, possibly fractional, number of tokens.
func (l *Limiter) Available() float64 {
	return l.lim.Tokens()
}

// Capacity returns the bucket size.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// RefillPerMinute returns the configured refill rate.
func (l *Limiter) RefillPerMinute() float64 {
	return l.refillPerMinute
}
