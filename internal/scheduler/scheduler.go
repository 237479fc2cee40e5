// Package scheduler re-delivers failed tasks on a periodic, cancellable
// background loop.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/metrics"
	"github.com/liblib-tools/collector/internal/state"
)

// Dispatch re-executes one failed task. A nil return resolves the task;
// any error reschedules it.
type Dispatch func(ctx context.Context, task state.FailedTask) error

// Config holds retry scheduler configuration.
type Config struct {
	// CheckInterval is the idle period between due-task scans.
	CheckInterval time.Duration
	// MaxAttempts is the re-delivery cap; beyond it a task is exhausted.
	MaxAttempts int
	// RetryDelay is the base delay of the re-delivery backoff.
	RetryDelay time.Duration
	// BackoffFactor multiplies the delay per attempt.
	BackoffFactor float64
	// MaxDelay caps the re-delivery backoff.
	MaxDelay time.Duration
}

// Scheduler drains due tasks from the failed-task queue back through the
// dispatch function. Stop waits for any in-flight attempt to finish so
// persisted state is never left mid-write.
type Scheduler struct {
	cfg      Config
	queue    *state.FailedTaskQueue
	dispatch Dispatch
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates cfg and builds a Scheduler.
func New(cfg Config, queue *state.FailedTaskQueue, dispatch Dispatch, logger *zap.Logger) (*Scheduler, error) {
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be > 0, got %v", cfg.CheckInterval)
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be > 0, got %d", cfg.MaxAttempts)
	}
	if cfg.BackoffFactor < 1 {
		return nil, fmt.Errorf("backoff factor must be >= 1, got %v", cfg.BackoffFactor)
	}
	if dispatch == nil {
		return nil, fmt.Errorf("dispatch function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Scheduler{
		cfg:      cfg,
		queue:    queue,
		dispatch: dispatch,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start launches the background loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.logger.Info("retry scheduler started",
		zap.Duration("check_interval", s.cfg.CheckInterval),
		zap.Int("max_attempts", s.cfg.MaxAttempts),
	)
}

// Stop signals cancellation and waits for the loop, including any in-flight
// retry attempt, to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("retry scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.DrainOnce(ctx)
		}
	}
}

// DrainOnce processes every currently due task. It is also the body of each
// periodic tick and can be called directly for a one-off drain.
func (s *Scheduler) DrainOnce(ctx context.Context) {
	due, err := s.queue.DueTasks()
	if err != nil {
		s.logger.Error("due task scan failed", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Info("re-dispatching due tasks", zap.Int("count", len(due)))

	for _, task := range due {
		if ctx.Err() != nil {
			return
		}
		s.redeliver(ctx, task)
	}
}

func (s *Scheduler) redeliver(ctx context.Context, task state.FailedTask) {
	err := s.dispatch(ctx, task)
	if err == nil {
		if mErr := s.queue.MarkResolved(task.TaskID); mErr != nil {
			s.logger.Error("mark resolved failed", zap.String("task_id", task.TaskID), zap.Error(mErr))
			return
		}
		metrics.ObserveRetryDispatch("resolved")
		s.logger.Info("failed task resolved",
			zap.String("task_id", task.TaskID),
			zap.String("target", task.Target),
		)
		return
	}
	if ctx.Err() != nil {
		// Shutdown mid-attempt; leave the task due for the next run.
		return
	}

	attempts := task.AttemptCount + 1
	if attempts > s.cfg.MaxAttempts {
		if mErr := s.queue.MarkExhausted(task.TaskID); mErr != nil {
			s.logger.Error("mark exhausted failed", zap.String("task_id", task.TaskID), zap.Error(mErr))
			return
		}
		metrics.ObserveRetryDispatch("exhausted")
		s.logger.Warn("failed task exhausted",
			zap.String("task_id", task.TaskID),
			zap.String("target", task.Target),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}

	next := s.now().Add(s.backoff(task.AttemptCount))
	if mErr := s.queue.Reschedule(task.TaskID, next); mErr != nil {
		s.logger.Error("reschedule failed", zap.String("task_id", task.TaskID), zap.Error(mErr))
		return
	}
	metrics.ObserveRetryDispatch("rescheduled")
	s.logger.Info("failed task rescheduled",
		zap.String("task_id", task.TaskID),
		zap.String("target", task.Target),
		zap.Time("next_retry_at", next),
		zap.Error(err),
	)
}

// backoff returns retryDelay * factor^attempt capped at MaxDelay.
func (s *Scheduler) backoff(attempt int) time.Duration {
	d := float64(s.cfg.RetryDelay) * math.Pow(s.cfg.BackoffFactor, float64(attempt))
	if s.cfg.MaxDelay > 0 && d > float64(s.cfg.MaxDelay) {
		d = float64(s.cfg.MaxDelay)
	}
	return time.Duration(d)
}
