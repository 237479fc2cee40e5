package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunStateStore_Lifecycle(t *testing.T) {
	t.Parallel()

	store, err := NewRunStateStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Start("run-1", TaskListCollection))

	rs, ok, err := store.Get("run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, RunRunning, rs.Status)
	require.Equal(t, TaskListCollection, rs.TaskType)
	require.False(t, rs.StartTime.IsZero())

	require.NoError(t, store.Update("run-1", func(rs *RunState) {
		rs.ProcessedItems += 30
		rs.TotalItems += 30
	}))
	require.NoError(t, store.Update("run-1", func(rs *RunState) {
		rs.Status = RunCompleted
	}))

	rs, ok, err = store.Get("run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, RunCompleted, rs.Status)
	require.Equal(t, 30, rs.ProcessedItems)
	require.False(t, rs.LastUpdate.Before(rs.StartTime))
}

func TestRunStateStore_UpdateUnknownRun(t *testing.T) {
	t.Parallel()

	store, err := NewRunStateStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.Error(t, store.Update("missing", func(*RunState) {}))
}

func TestRunStateStore_GetMissing(t *testing.T) {
	t.Parallel()

	store, err := NewRunStateStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)
}
