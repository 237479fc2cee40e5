package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCircuitOpen is returned when the target's circuit breaker rejects a
// call before any network attempt. The caller should retry later; no retry
// attempt was consumed.
var ErrCircuitOpen = errors.New("request rejected: circuit open")

// TransientError wraps a transport-level failure (timeout, reset, refused
// connection) that is worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

// Retriable reports whether the status is transient: 429 and all 5xx are
// retried with backoff, any other 4xx propagates immediately.
func (e *StatusError) Retriable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// retriable classifies an attempt error for the inline retry loop.
func retriable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retriable()
	}
	var te *TransientError
	return errors.As(err, &te)
}
