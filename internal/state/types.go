// Package state persists collection progress on disk: resume points for
// in-progress paginated tasks, the durable failed-task queue, and advisory
// run-level counters. Every file is rewritten atomically so a crash
// mid-write never corrupts it.
package state

import "time"

// Well-known task types for paginated collection work.
const (
	TaskListCollection   = "LIST_COLLECTION"
	TaskDetailCollection = "DETAIL_COLLECTION"
	TaskImageDownload    = "IMAGE_DOWNLOAD"
)

// TaskStatus is the lifecycle state of a failed task.
type TaskStatus string

// Failed task statuses.
const (
	StatusPending   TaskStatus = "PENDING"
	StatusRetrying  TaskStatus = "RETRYING"
	StatusExhausted TaskStatus = "EXHAUSTED"
	StatusResolved  TaskStatus = "RESOLVED"
)

// ResumePoint is the single live resume record for a task type.
type ResumePoint struct {
	TaskType       string            `json:"task_type"`
	CurrentPage    int               `json:"current_page"`
	TotalProcessed int               `json:"total_processed"`
	Metadata       map[string]string `json:"metadata"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// FailedTask is a durable record of a work item whose inline retries were
// exhausted, scheduled for later re-delivery.
type FailedTask struct {
	TaskID       string     `json:"task_id"`
	TaskType     string     `json:"task_type"`
	Target       string     `json:"target"`
	ErrorMessage string     `json:"error_message"`
	AttemptCount int        `json:"attempt_count"`
	NextRetryAt  time.Time  `json:"next_retry_at"`
	CreatedAt    time.Time  `json:"created_at"`
	Status       TaskStatus `json:"status"`
}

// RunState aggregates run metadata for operator visibility. It is advisory
// only and never authoritative for correctness.
type RunState struct {
	RunID          string    `json:"run_id"`
	TaskType       string    `json:"task_type"`
	Status         string    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	LastUpdate     time.Time `json:"last_update"`
	TotalItems     int       `json:"total_items"`
	ProcessedItems int       `json:"processed_items"`
	FailedItems    int       `json:"failed_items"`
}
