package breaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(t *testing.T, failures, successes int, recovery time.Duration) *Breaker {
	t.Helper()
	b, err := New(Config{
		Name:             "test",
		FailureThreshold: failures,
		RecoveryTimeout:  recovery,
		SuccessThreshold: successes,
	}, nil)
	require.NoError(t, err)
	return b
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{FailureThreshold: 0, RecoveryTimeout: time.Second, SuccessThreshold: 1}, nil)
	require.Error(t, err)

	_, err = New(Config{FailureThreshold: 1, RecoveryTimeout: 0, SuccessThreshold: 1}, nil)
	require.Error(t, err)

	_, err = New(Config{FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 0}, nil)
	require.Error(t, err)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, 3, 1, time.Minute)
	require.Equal(t, StateClosed, b.State())

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	}
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.LastOpened().IsZero())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, 3, 1, time.Minute)

	require.Error(t, b.Do(func() error { return errBoom }))
	require.Error(t, b.Do(func() error { return errBoom }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return errBoom }))
	require.Error(t, b.Do(func() error { return errBoom }))

	// Only two consecutive failures since the success; still closed.
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpenFailsFastWithoutCalling(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, 1, 1, time.Minute)
	require.Error(t, b.Do(func() error { return errBoom }))
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	require.False(t, called)
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, 1, 2, 50*time.Millisecond)
	require.Error(t, b.Do(func() error { return errBoom }))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	// Two trial successes close the breaker.
	require.NoError(t, b.Do(func() error { return nil }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, 1, 2, 50*time.Millisecond)
	require.Error(t, b.Do(func() error { return errBoom }))

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	require.Equal(t, StateOpen, b.State())

	// The trial failure restarts the recovery timer; fail fast again.
	require.ErrorIs(t, b.Do(func() error { return nil }), ErrOpen)
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, 2, 1, time.Minute)

	// A target that keeps timing out must open the breaker like any other
	// failing target.
	require.Error(t, b.Do(func() error { return context.DeadlineExceeded }))
	require.Error(t, b.Do(func() error { return context.DeadlineExceeded }))
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_AbortedAttemptsAreNeutral(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, 2, 1, time.Minute)

	for i := 0; i < 5; i++ {
		err := b.Do(func() error { return fmt.Errorf("%w: %v", ErrAborted, context.Canceled) })
		require.ErrorIs(t, err, ErrAborted)
	}
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTimeoutReopens(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, 1, 2, 50*time.Millisecond)
	require.Error(t, b.Do(func() error { return errBoom }))

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	// A trial call that times out is a trial failure, not a success.
	require.Error(t, b.Do(func() error { return context.DeadlineExceeded }))
	require.Equal(t, StateOpen, b.State())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "CLOSED", StateClosed.String())
	require.Equal(t, "OPEN", StateOpen.String())
	require.Equal(t, "HALF_OPEN", StateHalfOpen.String())
}
