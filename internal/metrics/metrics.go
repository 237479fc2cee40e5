// Package metrics exposes Prometheus collectors for the collector service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal        *prometheus.CounterVec
	fetchRetriesTotal         prometheus.Counter
	fetchInFlight             prometheus.Gauge
	breakerState              prometheus.Gauge
	rateLimitDelaySeconds     prometheus.Histogram
	failedTaskQueueDepth      prometheus.Gauge
	retrySchedulerRunsTotal   *prometheus.CounterVec
	checkpointWritesTotal     *prometheus.CounterVec
	checkpointCurrentPage     *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_fetch_requests_total",
				Help: "Total number of logical fetch requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "collector_fetch_retries_total",
				Help: "Total number of inline retry attempts.",
			},
		)

		fetchInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_fetch_in_flight",
				Help: "Number of requests currently holding a concurrency permit.",
			},
		)

		breakerState = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_breaker_state",
				Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "collector_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)

		failedTaskQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_failed_tasks_pending",
				Help: "Number of failed tasks awaiting re-delivery.",
			},
		)

		retrySchedulerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_retry_dispatches_total",
				Help: "Total failed-task re-dispatches, labeled by result.",
			},
			[]string{"result"},
		)

		checkpointWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_checkpoint_writes_total",
				Help: "Total checkpoint saves, labeled by task type.",
			},
			[]string{"task_type"},
		)

		checkpointCurrentPage = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "collector_checkpoint_current_page",
				Help: "Most recently checkpointed page, labeled by task type.",
			},
			[]string{"task_type"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest counts a finished logical request by outcome
// (success, failure, circuit_open).
func ObserveRequest(outcome string) {
	fetchRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry counts one inline retry attempt.
func ObserveRetry() {
	fetchRetriesTotal.Inc()
}

// SetInFlight records the number of held concurrency permits.
func SetInFlight(n int) {
	fetchInFlight.Set(float64(n))
}

// SetBreakerState records the breaker state gauge.
func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(d time.Duration) {
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// SetFailedTaskDepth records the number of tasks awaiting re-delivery.
func SetFailedTaskDepth(n int) {
	failedTaskQueueDepth.Set(float64(n))
}

// ObserveRetryDispatch counts a scheduler re-dispatch by result
// (resolved, rescheduled, exhausted).
func ObserveRetryDispatch(result string) {
	retrySchedulerRunsTotal.WithLabelValues(result).Inc()
}

// ObserveCheckpointWrite counts one checkpoint save and records the page.
func ObserveCheckpointWrite(taskType string, page int) {
	checkpointWritesTotal.WithLabelValues(taskType).Inc()
	checkpointCurrentPage.WithLabelValues(taskType).Set(float64(page))
}
