package state

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/metrics"
)

const failedFile = "failed_tasks.json"

// FailedTaskQueue is the durable record of exhausted-retry work items,
// persisted as a list in failed_tasks.json with atomic rewrites.
type FailedTaskQueue struct {
	fileStore
	retryDelay time.Duration
}

// NewFailedTaskQueue creates the queue rooted at dir. retryDelay is how
// long after Add a task first becomes due.
func NewFailedTaskQueue(dir string, retryDelay time.Duration, logger *zap.Logger) (*FailedTaskQueue, error) {
	q := &FailedTaskQueue{retryDelay: retryDelay}
	if err := q.fileStore.init(filepath.Join(dir, failedFile), logger); err != nil {
		return nil, err
	}
	return q, nil
}

// Add records a failed work item with status PENDING, due at
// now + the configured retry delay. It returns the new task ID.
func (q *FailedTaskQueue) Add(taskType, target, errorMessage string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks, err := q.loadLocked()
	if err != nil {
		return "", err
	}

	now := q.now()
	task := FailedTask{
		TaskID:       uuid.NewString(),
		TaskType:     taskType,
		Target:       target,
		ErrorMessage: errorMessage,
		AttemptCount: 0,
		NextRetryAt:  now.Add(q.retryDelay),
		CreatedAt:    now,
		Status:       StatusPending,
	}
	tasks = append(tasks, task)

	if err := q.saveLocked(tasks); err != nil {
		return "", err
	}
	q.logger.Info("failed task queued",
		zap.String("task_id", task.TaskID),
		zap.String("task_type", taskType),
		zap.String("target", target),
		zap.Time("next_retry_at", task.NextRetryAt),
	)
	return task.TaskID, nil
}

// DueTasks returns tasks with status PENDING or RETRYING whose nextRetryAt
// has passed, ordered earliest-due-first.
func (q *FailedTaskQueue) DueTasks() ([]FailedTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks, err := q.loadLocked()
	if err != nil {
		return nil, err
	}

	now := q.now()
	due := make([]FailedTask, 0, len(tasks))
	for _, t := range tasks {
		if (t.Status == StatusPending || t.Status == StatusRetrying) && !t.NextRetryAt.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	return due, nil
}

// All returns a snapshot of every task in the queue.
func (q *FailedTaskQueue) All() ([]FailedTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked()
}

// MarkResolved archives a task after a successful re-delivery.
func (q *FailedTaskQueue) MarkResolved(taskID string) error {
	return q.update(taskID, func(t *FailedTask) {
		t.Status = StatusResolved
	})
}

// Reschedule records a failed re-delivery: the attempt count is bumped and
// the task becomes due again at nextRetryAt.
func (q *FailedTaskQueue) Reschedule(taskID string, nextRetryAt time.Time) error {
	return q.update(taskID, func(t *FailedTask) {
		t.AttemptCount++
		t.NextRetryAt = nextRetryAt
		t.Status = StatusRetrying
	})
}

// MarkExhausted terminates a task that hit the attempt cap. Exhausted tasks
// are surfaced for operator attention and never retried automatically.
func (q *FailedTaskQueue) MarkExhausted(taskID string) error {
	return q.update(taskID, func(t *FailedTask) {
		t.AttemptCount++
		t.Status = StatusExhausted
	})
}

func (q *FailedTaskQueue) update(taskID string, mutate func(*FailedTask)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks, err := q.loadLocked()
	if err != nil {
		return err
	}
	for i := range tasks {
		if tasks[i].TaskID == taskID {
			mutate(&tasks[i])
			return q.saveLocked(tasks)
		}
	}
	return fmt.Errorf("failed task %s not found", taskID)
}

func (q *FailedTaskQueue) loadLocked() ([]FailedTask, error) {
	var tasks []FailedTask
	if _, err := readJSON(q.path, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (q *FailedTaskQueue) saveLocked(tasks []FailedTask) error {
	if err := writeJSONAtomic(q.path, tasks); err != nil {
		return err
	}
	pending := 0
	for _, t := range tasks {
		if t.Status == StatusPending || t.Status == StatusRetrying {
			pending++
		}
	}
	metrics.SetFailedTaskDepth(pending)
	return nil
}
