// Package collector ties the fetch middleware, checkpoint store, failed-task
// queue and retry scheduler into one session facade for crawl loops.
package collector

import (
	"context"

	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/fetch"
	"github.com/liblib-tools/collector/internal/scheduler"
	"github.com/liblib-tools/collector/internal/state"
)

// Session is the surface a crawl loop works against. All methods are safe
// for concurrent use.
type Session struct {
	mw          *fetch.Middleware
	checkpoints *state.CheckpointStore
	queue       *state.FailedTaskQueue
	runs        *state.RunStateStore
	sched       *scheduler.Scheduler
	logger      *zap.Logger
}

// NewSession assembles a Session from its already-constructed parts.
func NewSession(
	mw *fetch.Middleware,
	checkpoints *state.CheckpointStore,
	queue *state.FailedTaskQueue,
	runs *state.RunStateStore,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		mw:          mw,
		checkpoints: checkpoints,
		queue:       queue,
		runs:        runs,
		sched:       sched,
		logger:      logger,
	}
}

// Request performs one resilient outbound call.
func (s *Session) Request(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	return s.mw.Request(ctx, req)
}

// GetStats returns the middleware counter snapshot.
func (s *Session) GetStats() fetch.Snapshot {
	return s.mw.GetStats()
}

// SaveCheckpoint records the resume point for taskType.
func (s *Session) SaveCheckpoint(taskType string, currentPage, totalProcessed int, metadata map[string]string) error {
	return s.checkpoints.Save(taskType, currentPage, totalProcessed, metadata)
}

// LoadCheckpoint returns the resume point for taskType, if any.
func (s *Session) LoadCheckpoint(taskType string) (state.ResumePoint, bool, error) {
	return s.checkpoints.Load(taskType)
}

// AddFailedTask records a work item whose retries were exhausted.
func (s *Session) AddFailedTask(taskType, target, errorMessage string) (string, error) {
	return s.queue.Add(taskType, target, errorMessage)
}

// DueTasks returns the failed tasks currently eligible for re-delivery.
func (s *Session) DueTasks() ([]state.FailedTask, error) {
	return s.queue.DueTasks()
}

// StartRetryScheduler launches the background re-delivery loop.
func (s *Session) StartRetryScheduler() {
	s.sched.Start()
}

// StopRetryScheduler cancels the loop and waits for in-flight work.
func (s *Session) StopRetryScheduler() {
	s.sched.Stop()
}
