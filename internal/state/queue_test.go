package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, retryDelay time.Duration) *FailedTaskQueue {
	t.Helper()
	q, err := NewFailedTaskQueue(t.TempDir(), retryDelay, nil)
	require.NoError(t, err)
	return q
}

func TestQueue_AddAssignsIDAndSchedule(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 5*time.Minute)
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return base })

	id, err := q.Add(TaskDetailCollection, "https://example.com/item/9", "status 503")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	tasks, err := q.All()
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	require.Equal(t, id, task.TaskID)
	require.Equal(t, TaskDetailCollection, task.TaskType)
	require.Equal(t, "https://example.com/item/9", task.Target)
	require.Equal(t, "status 503", task.ErrorMessage)
	require.Equal(t, 0, task.AttemptCount)
	require.Equal(t, StatusPending, task.Status)
	require.True(t, task.NextRetryAt.Equal(base.Add(5*time.Minute)))
	require.True(t, task.CreatedAt.Equal(base))
}

func TestQueue_DueTasksHonorsNextRetryAt(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 5*time.Minute)
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return base })

	id, err := q.Add(TaskListCollection, "page:3", "timeout")
	require.NoError(t, err)

	// Not yet due.
	due, err := q.DueTasks()
	require.NoError(t, err)
	require.Empty(t, due)

	// Due exactly at the scheduled time.
	q.SetClock(func() time.Time { return base.Add(5 * time.Minute) })
	due, err = q.DueTasks()
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, id, due[0].TaskID)
}

func TestQueue_DueTasksOrderedEarliestFirst(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, time.Minute)
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	q.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	later, err := q.Add(TaskListCollection, "page:2", "timeout")
	require.NoError(t, err)

	q.SetClock(func() time.Time { return base })
	earlier, err := q.Add(TaskListCollection, "page:1", "timeout")
	require.NoError(t, err)

	q.SetClock(func() time.Time { return base.Add(time.Hour) })
	due, err := q.DueTasks()
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, earlier, due[0].TaskID)
	require.Equal(t, later, due[1].TaskID)
}

func TestQueue_MarkResolvedExcludesFromDue(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 0)
	id, err := q.Add(TaskImageDownload, "https://example.com/img.png", "reset")
	require.NoError(t, err)

	require.NoError(t, q.MarkResolved(id))

	due, err := q.DueTasks()
	require.NoError(t, err)
	require.Empty(t, due)

	// Still archived in the full list.
	tasks, err := q.All()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, StatusResolved, tasks[0].Status)
}

func TestQueue_RescheduleBumpsAttemptAndDueTime(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 0)
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return base })

	id, err := q.Add(TaskListCollection, "page:4", "status 502")
	require.NoError(t, err)

	next := base.Add(10 * time.Minute)
	require.NoError(t, q.Reschedule(id, next))

	tasks, err := q.All()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, 1, tasks[0].AttemptCount)
	require.Equal(t, StatusRetrying, tasks[0].Status)
	require.True(t, tasks[0].NextRetryAt.Equal(next))

	// RETRYING tasks come due like PENDING ones.
	q.SetClock(func() time.Time { return next })
	due, err := q.DueTasks()
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestQueue_MarkExhaustedNeverDueAgain(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 0)
	id, err := q.Add(TaskListCollection, "page:8", "status 500")
	require.NoError(t, err)

	require.NoError(t, q.MarkExhausted(id))

	due, err := q.DueTasks()
	require.NoError(t, err)
	require.Empty(t, due)

	tasks, err := q.All()
	require.NoError(t, err)
	require.Equal(t, StatusExhausted, tasks[0].Status)
	require.Equal(t, 1, tasks[0].AttemptCount)
}

func TestQueue_UpdateUnknownTaskFails(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 0)
	require.Error(t, q.MarkResolved("no-such-task"))
	require.Error(t, q.Reschedule("no-such-task", time.Now()))
	require.Error(t, q.MarkExhausted("no-such-task"))
}

func TestQueue_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	q, err := NewFailedTaskQueue(dir, 0, nil)
	require.NoError(t, err)

	id, err := q.Add(TaskDetailCollection, "https://example.com/item/1", "timeout")
	require.NoError(t, err)

	reopened, err := NewFailedTaskQueue(dir, 0, nil)
	require.NoError(t, err)
	tasks, err := reopened.All()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, id, tasks[0].TaskID)
}
