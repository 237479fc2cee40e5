// Package breaker provides a consecutive-failure circuit breaker for
// outbound targets. It wraps github.com/sony/gobreaker to fail fast while
// a target is unhealthy and probe it again after a recovery timeout.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrOpen is returned when the breaker rejects a call without attempting it.
var ErrOpen = errors.New("circuit breaker is open")

// ErrAborted marks an attempt cut short by its caller rather than by the
// target. Callers wrap it around the underlying error so the breaker records
// the attempt as neither success nor failure evidence. A plain timeout is
// NOT an abort; it counts as a target failure.
var ErrAborted = errors.New("attempt aborted by caller")

// State is the breaker state exposed to callers.
type State int

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies the target in logs.
	Name string
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before trialing.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the consecutive trial successes needed to close.
	SuccessThreshold int
}

// Breaker is a per-target failure state machine.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger

	mu         sync.Mutex
	lastOpened time.Time
}

// New creates a Breaker. It fails on non-positive thresholds or timeout.
func New(cfg Config, logger *zap.Logger) (*Breaker, error) {
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be > 0, got %d", cfg.FailureThreshold)
	}
	if cfg.RecoveryTimeout <= 0 {
		return nil, fmt.Errorf("recovery timeout must be > 0, got %v", cfg.RecoveryTimeout)
	}
	if cfg.SuccessThreshold <= 0 {
		return nil, fmt.Errorf("success threshold must be > 0, got %d", cfg.SuccessThreshold)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}

	b := &Breaker{logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		// In half-open, gobreaker admits up to MaxRequests trial calls and
		// closes after that many consecutive successes.
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			// An abandoned attempt says nothing about target health. Raw
			// context errors are deliberately not matched here: an attempt
			// that hit its own deadline is a slow target, a failure.
			return err == nil || errors.Is(err, ErrAborted)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.mu.Lock()
				b.lastOpened = time.Now()
				b.mu.Unlock()
			}
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return b, nil
}

// Do runs fn under the breaker. While the breaker is open, or when all
// half-open trial slots are taken, it returns ErrOpen without calling fn.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// LastOpened returns the time of the most recent transition to open, or the
// zero time if the breaker never opened.
func (b *Breaker) LastOpened() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastOpened
}
