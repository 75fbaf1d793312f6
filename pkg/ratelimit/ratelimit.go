// Package ratelimit paces outbound calls to metered providers. The search
// provider bills per request and throttles bursts, so callers wait on a
// shared Limiter before every query.
package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Limiter enforces a minimum interval between operations with optional
// jitter so request timing does not look perfectly mechanical. Safe for
// concurrent use.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64 // fraction of the interval, 0 to 1
	interval time.Duration
	ch       <-chan time.Time
}

// NewLimiter builds a limiter allowing rps operations per second. jitter is
// clamped to [0, 1]. When rps <= 0 the limiter never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}

	jitter = min(max(jitter, 0), 1)

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)

	return &Limiter{
		ticker:   ticker,
		jitter:   jitter,
		interval: interval,
		ch:       ticker.C,
	}
}

// Wait blocks until the next slot opens or ctx is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
	}

	// Positive jitter stretches the slot by up to jitter*interval. A negative
	// draw runs immediately; the ticker already enforces the minimum spacing.
	if delay := l.jitterDelay(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Limiter) jitterDelay() time.Duration {
	if l.jitter <= 0 {
		return 0
	}
	draw := (rand.Float64() * 2) - 1 // -1 to 1
	return time.Duration(float64(l.interval) * l.jitter * draw)
}

// Stop releases the underlying ticker.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
}
