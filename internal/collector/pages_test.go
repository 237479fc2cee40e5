package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liblib-tools/collector/internal/fetch"
	"github.com/liblib-tools/collector/internal/state"
)

func newTestSession(t *testing.T) (*Session, *state.CheckpointStore, *state.FailedTaskQueue) {
	t.Helper()
	dir := t.TempDir()

	checkpoints, err := state.NewCheckpointStore(dir, nil)
	require.NoError(t, err)
	queue, err := state.NewFailedTaskQueue(dir, 0, nil)
	require.NoError(t, err)
	runs, err := state.NewRunStateStore(dir, nil)
	require.NoError(t, err)

	return NewSession(nil, checkpoints, queue, runs, nil, nil), checkpoints, queue
}

func TestCollectPages_CheckpointsEveryPage(t *testing.T) {
	t.Parallel()

	s, checkpoints, _ := newTestSession(t)

	var visited []int
	err := s.CollectPages(context.Background(), state.TaskListCollection, func(_ context.Context, page int) (int, bool, error) {
		visited = append(visited, page)
		return 10, page < 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, visited)

	rp, ok, err := checkpoints.Load(state.TaskListCollection)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, rp.CurrentPage)
	require.Equal(t, 30, rp.TotalProcessed)
}

func TestCollectPages_ResumesAfterCheckpoint(t *testing.T) {
	t.Parallel()

	s, checkpoints, _ := newTestSession(t)
	require.NoError(t, checkpoints.Save(state.TaskListCollection, 5, 120, nil))

	var visited []int
	err := s.CollectPages(context.Background(), state.TaskListCollection, func(_ context.Context, page int) (int, bool, error) {
		visited = append(visited, page)
		return 10, page < 7, nil
	})
	require.NoError(t, err)

	// Pages 1 through 5 are already covered by the checkpoint.
	require.Equal(t, []int{6, 7}, visited)

	rp, _, err := checkpoints.Load(state.TaskListCollection)
	require.NoError(t, err)
	require.Equal(t, 7, rp.CurrentPage)
	require.Equal(t, 140, rp.TotalProcessed)
}

func TestCollectPages_FailedPageQueuedAndSkipped(t *testing.T) {
	t.Parallel()

	s, checkpoints, queue := newTestSession(t)

	err := s.CollectPages(context.Background(), state.TaskListCollection, func(_ context.Context, page int) (int, bool, error) {
		if page == 2 {
			return 0, true, errors.New("status 503")
		}
		return 10, page < 3, nil
	})
	require.NoError(t, err)

	// The failed page advanced the checkpoint; its retry is the queue's job.
	rp, _, err := checkpoints.Load(state.TaskListCollection)
	require.NoError(t, err)
	require.Equal(t, 3, rp.CurrentPage)
	require.Equal(t, 20, rp.TotalProcessed)

	tasks, err := queue.All()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "page:2", tasks[0].Target)
	require.Equal(t, state.TaskListCollection, tasks[0].TaskType)
	require.Equal(t, "status 503", tasks[0].ErrorMessage)
}

func TestCollectPages_CircuitOpenAbortsRun(t *testing.T) {
	t.Parallel()

	s, checkpoints, queue := newTestSession(t)

	err := s.CollectPages(context.Background(), state.TaskListCollection, func(_ context.Context, page int) (int, bool, error) {
		if page == 3 {
			return 0, false, fetch.ErrCircuitOpen
		}
		return 10, true, nil
	})
	require.ErrorIs(t, err, fetch.ErrCircuitOpen)

	// Completed pages stay checkpointed so the next run resumes at page 3.
	rp, ok, err := checkpoints.Load(state.TaskListCollection)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, rp.CurrentPage)

	// An aborted run queues nothing; the whole run retries later.
	tasks, err := queue.All()
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestCollectPages_AbortsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	s, _, queue := newTestSession(t)

	pages := 0
	err := s.CollectPages(context.Background(), state.TaskListCollection, func(_ context.Context, page int) (int, bool, error) {
		pages++
		return 0, true, fmt.Errorf("status 500 on page %d", page)
	})
	require.Error(t, err)
	require.Equal(t, 3, pages)

	tasks, err := queue.All()
	require.NoError(t, err)
	require.Len(t, tasks, 3)
}

func TestCollectPages_ContextCancellation(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.CollectPages(ctx, state.TaskListCollection, func(context.Context, int) (int, bool, error) {
		t.Fatal("page function must not run after cancellation")
		return 0, false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
