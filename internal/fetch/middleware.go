// Package fetch implements the resilient fetch middleware: rate limiting,
// bounded concurrency, retry with exponential backoff, a circuit breaker,
// and proxy rotation composed around every outbound request.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/breaker"
	"github.com/liblib-tools/collector/internal/metrics"
	"github.com/liblib-tools/collector/internal/proxy"
	"github.com/liblib-tools/collector/internal/ratelimit"
)

// Middleware composes the limiter, proxy pool, breaker and retry policy
// around a Transport. A single instance is shared by all concurrent callers.
type Middleware struct {
	limiter   *ratelimit.Limiter
	proxies   *proxy.Manager
	brk       *breaker.Breaker
	policy    Policy
	transport Transport
	agents    *agentRotator
	stats     *stats
	logger    *zap.Logger
}

// NewMiddleware wires the resilience components around a transport.
// userAgents may be nil to use the built-in rotation pool.
func NewMiddleware(
	limiter *ratelimit.Limiter,
	proxies *proxy.Manager,
	brk *breaker.Breaker,
	policy Policy,
	transport Transport,
	userAgents []string,
	logger *zap.Logger,
) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Middleware{
		limiter:   limiter,
		proxies:   proxies,
		brk:       brk,
		policy:    policy,
		transport: transport,
		agents:    newAgentRotator(userAgents),
		stats:     &stats{},
		logger:    logger,
	}
}

// Request performs one logical call with the full resilience stack applied.
// Transient failures (timeouts, resets, 429, 5xx) are retried inline per the
// policy; other 4xx propagate immediately. While the breaker is open the
// call is rejected with ErrCircuitOpen before any network attempt and
// without consuming a retry attempt. Exhausted retries return the last
// error; handing the work item to the failed-task queue is the caller's
// responsibility.
func (m *Middleware) Request(ctx context.Context, req Request) (*Response, error) {
	m.stats.incTotal()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Reading the state also moves an expired open breaker to half-open.
		state := m.brk.State()
		metrics.SetBreakerState(int(state))
		if state == breaker.StateOpen {
			m.stats.incCircuitOpen()
			metrics.ObserveRequest("circuit_open")
			return nil, ErrCircuitOpen
		}

		waitStart := time.Now()
		if err := m.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		if d := time.Since(waitStart); d > time.Millisecond {
			metrics.ObserveRateLimitDelay(d)
		}
		metrics.SetInFlight(m.limiter.InFlight())

		proxyURL := m.proxies.Next()
		resp, err := m.attempt(ctx, req, proxyURL)

		m.limiter.Release()
		metrics.SetInFlight(m.limiter.InFlight())

		if err == nil {
			m.stats.incSucceeded()
			metrics.ObserveRequest("success")
			return resp, nil
		}

		if errors.Is(err, breaker.ErrOpen) {
			m.stats.incCircuitOpen()
			metrics.ObserveRequest("circuit_open")
			return nil, ErrCircuitOpen
		}
		// Only the caller's own context ends the loop early. An attempt that
		// hit the transport's per-attempt deadline is a transient failure
		// and falls through to the retry classification below.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var te *TransientError
		if proxyURL != "" && errors.As(err, &te) {
			m.proxies.MarkFailed(proxyURL)
		}

		if !retriable(err) || attempt >= m.policy.MaxRetries {
			m.stats.incFailed()
			metrics.ObserveRequest("failure")
			return nil, err
		}

		m.stats.incRetried()
		metrics.ObserveRetry()
		delay := m.policy.Delay(attempt)
		m.logger.Debug("retrying request",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs a single network attempt under the circuit breaker.
// Transport errors (timeouts included), HTTP 429 and 5xx are reported to
// the breaker as failures; an attempt ended by the caller's own context is
// marked aborted so the breaker ignores it. Other client errors complete
// normally from the breaker's point of view and surface to the retry loop
// as non-retriable.
func (m *Middleware) attempt(ctx context.Context, req Request, proxyURL string) (*Response, error) {
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	if _, ok := headers["User-Agent"]; !ok {
		headers["User-Agent"] = m.agents.next()
	}
	attempt := req
	attempt.Headers = headers

	var resp *Response
	err := m.brk.Do(func() error {
		r, err := m.transport.RoundTrip(ctx, attempt, proxyURL)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", breaker.ErrAborted, err)
			}
			return err
		}
		resp = r
		se := &StatusError{Code: r.StatusCode, URL: req.URL}
		if r.StatusCode >= 400 && se.Retriable() {
			return se
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL}
	}
	return resp, nil
}

// GetStats returns an immutable snapshot of the middleware counters plus
// the current breaker state and in-flight permit count.
func (m *Middleware) GetStats() Snapshot {
	snap := m.stats.snapshot()
	snap.BreakerState = m.brk.State().String()
	snap.InFlight = m.limiter.InFlight()
	return snap
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
