// Package ratelimit implements a token bucket rate limiter with bounded
// concurrency for outbound API calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond is the long-run throughput ceiling.
	RequestsPerSecond float64
	// MaxConcurrent bounds the number of in-flight calls.
	MaxConcurrent int
}

// Limiter bounds both in-flight concurrency and long-run request rate.
// Excess demand queues; no call is ever rejected for exceeding capacity.
type Limiter struct {
	bucket   *rate.Limiter
	permits  *semaphore.Weighted
	inFlight atomic.Int64
}

// New creates a Limiter. It fails on non-positive rate or concurrency.
func New(cfg Config) (*Limiter, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be > 0, got %v", cfg.RequestsPerSecond)
	}
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent must be > 0, got %d", cfg.MaxConcurrent)
	}
	return &Limiter{
		// Burst of one keeps dispatch evenly spaced at the configured rate.
		bucket:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		permits: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Acquire blocks until a concurrency permit is held and the rate bucket
// admits the call. On context cancellation nothing stays held.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.permits.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire permit: %w", err)
	}
	if err := l.bucket.Wait(ctx); err != nil {
		l.permits.Release(1)
		return fmt.Errorf("rate limit wait: %w", err)
	}
	l.inFlight.Add(1)
	return nil
}

// Release returns the concurrency permit taken by Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.permits.Release(1)
}

// InFlight reports the number of currently held permits.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}
