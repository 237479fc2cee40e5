package fetch

import (
	"fmt"
	"math"
	"time"
)

// Policy computes backoff delays for transient failures.
type Policy struct {
	// MaxRetries is the number of retry attempts after the first call.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// BackoffFactor multiplies the delay on each subsequent retry.
	BackoffFactor float64
	// MaxDelay caps the computed delay; zero means uncapped.
	MaxDelay time.Duration
}

// NewPolicy validates and returns a Policy.
func NewPolicy(maxRetries int, baseDelay time.Duration, factor float64, maxDelay time.Duration) (Policy, error) {
	if maxRetries < 0 {
		return Policy{}, fmt.Errorf("max retries must be >= 0, got %d", maxRetries)
	}
	if baseDelay < 0 {
		return Policy{}, fmt.Errorf("base delay must be >= 0, got %v", baseDelay)
	}
	if factor < 1 {
		return Policy{}, fmt.Errorf("backoff factor must be >= 1, got %v", factor)
	}
	return Policy{
		MaxRetries:    maxRetries,
		BaseDelay:     baseDelay,
		BackoffFactor: factor,
		MaxDelay:      maxDelay,
	}, nil
}

// Delay returns baseDelay * backoffFactor^attempt, capped at MaxDelay.
// Attempt numbering starts at 0 for the first retry.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}
