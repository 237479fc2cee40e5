package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/fetch"
	"github.com/liblib-tools/collector/internal/state"
)

// PageFunc fetches and processes one page of a paginated task. It returns
// the number of items processed and whether more pages remain.
type PageFunc func(ctx context.Context, page int) (processed int, more bool, err error)

// CollectPages runs a resumable paginated collection. It resumes from the
// saved checkpoint (or page 1), checkpoints after every completed page, and
// hands pages that exhausted their inline retries to the failed-task queue.
// A circuit-open rejection aborts the run; progress up to that point stays
// checkpointed.
func (s *Session) CollectPages(ctx context.Context, taskType string, fn PageFunc) error {
	startPage := 1
	totalProcessed := 0
	if rp, ok, err := s.checkpoints.Load(taskType); err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	} else if ok {
		startPage = rp.CurrentPage + 1
		totalProcessed = rp.TotalProcessed
		s.logger.Info("resuming from checkpoint",
			zap.String("task_type", taskType),
			zap.Int("page", startPage),
			zap.Int("total_processed", totalProcessed),
		)
	}

	runID := uuid.NewString()
	if err := s.runs.Start(runID, taskType); err != nil {
		return fmt.Errorf("start run state: %w", err)
	}

	// Runs of failing pages usually mean the remote end moved, not three
	// coincidental bad pages; give up rather than queue the whole tail.
	const maxConsecutivePageFailures = 3
	consecutiveFailures := 0

	for page := startPage; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, more, err := fn(ctx, page)
		if err != nil {
			if errors.Is(err, fetch.ErrCircuitOpen) || ctx.Err() != nil {
				// Target unhealthy or caller shutting down; the checkpoint
				// already covers every completed page.
				s.finishRun(runID, state.RunFailed)
				return err
			}
			taskID, qErr := s.queue.Add(taskType, fmt.Sprintf("page:%d", page), err.Error())
			if qErr != nil {
				s.finishRun(runID, state.RunFailed)
				return fmt.Errorf("queue failed page %d: %w", page, qErr)
			}
			s.logger.Warn("page failed, queued for retry",
				zap.String("task_type", taskType),
				zap.Int("page", page),
				zap.String("task_id", taskID),
				zap.Error(err),
			)
			s.updateRun(runID, func(rs *state.RunState) { rs.FailedItems++ })
			// A failed page still advances the checkpoint; the queued task
			// owns its re-delivery.
			consecutiveFailures++
			if consecutiveFailures >= maxConsecutivePageFailures {
				s.finishRun(runID, state.RunFailed)
				return fmt.Errorf("aborting after %d consecutive page failures: %w", consecutiveFailures, err)
			}
		} else {
			consecutiveFailures = 0
			totalProcessed += n
			s.updateRun(runID, func(rs *state.RunState) {
				rs.ProcessedItems += n
				rs.TotalItems += n
			})
		}

		if err := s.checkpoints.Save(taskType, page, totalProcessed, nil); err != nil {
			s.finishRun(runID, state.RunFailed)
			return fmt.Errorf("save checkpoint: %w", err)
		}

		if err == nil && !more {
			break
		}
	}

	s.finishRun(runID, state.RunCompleted)
	s.logger.Info("collection finished",
		zap.String("task_type", taskType),
		zap.Int("total_processed", totalProcessed),
	)
	return nil
}

func (s *Session) updateRun(runID string, mutate func(*state.RunState)) {
	if err := s.runs.Update(runID, mutate); err != nil {
		s.logger.Error("run state update failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Session) finishRun(runID, status string) {
	s.updateRun(runID, func(rs *state.RunState) { rs.Status = status })
}
