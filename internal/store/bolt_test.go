package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/task"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tk := task.New("echo", "assistant -p hi", task.PriorityNormal)
	require.NoError(t, s.SaveTask(ctx, tk))

	got, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, tk.Name, got.Name)

	_, err = s.GetTask(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetPendingReadyOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	low := task.New("low", "c", task.PriorityLow)
	urgent := task.New("urgent", "c", task.PriorityUrgent)
	normal := task.New("normal", "c", task.PriorityNormal)

	low.CreatedAt = time.Now().UTC()
	urgent.CreatedAt = low.CreatedAt.Add(10 * time.Millisecond)
	normal.CreatedAt = low.CreatedAt.Add(20 * time.Millisecond)

	for _, tk := range []*task.Task{low, urgent, normal} {
		require.NoError(t, s.SaveTask(ctx, tk))
	}

	ready, err := s.GetPendingReady(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ready, 3)
	require.Equal(t, "urgent", ready[0].Name)
	require.Equal(t, "normal", ready[1].Name)
	require.Equal(t, "low", ready[2].Name)
}

func TestGetPendingReadyExcludesFutureNextAllowedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	future := time.Now().UTC().Add(time.Hour)
	tk := task.New("waiting", "c", task.PriorityUrgent)
	tk.NextAllowedAt = &future
	require.NoError(t, s.SaveTask(ctx, tk))

	ready, err := s.GetPendingReady(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, ready)
}

func TestMarkIdempotentFailsOnDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.MarkIdempotent(ctx, "key-1", "task-1", "ok"))
	err := s.MarkIdempotent(ctx, "key-1", "task-2", "ok")
	require.ErrorIs(t, err, ErrAlreadyIdempotent)
}

func TestActiveWorkersFiltersStaleHeartbeats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fresh := &WorkerStatus{WorkerID: "fresh", State: WorkerRunning, LastHeartbeat: time.Now().UTC()}
	stale := &WorkerStatus{WorkerID: "stale", State: WorkerRunning, LastHeartbeat: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, s.SaveWorkerStatus(ctx, fresh))
	require.NoError(t, s.SaveWorkerStatus(ctx, stale))

	active, err := s.GetActiveWorkers(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "fresh", active[0].WorkerID)
}

func TestCleanupPurgesOldTerminalTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := task.New("old", "c", task.PriorityNormal)
	old.State = task.StateCompleted
	oldCompletion := time.Now().UTC().Add(-30 * 24 * time.Hour)
	old.CompletedAt = &oldCompletion
	require.NoError(t, s.SaveTask(ctx, old))
	require.NoError(t, s.SaveSnapshot(ctx, old.ID, "latest", []byte("{}")))

	recent := task.New("recent", "c", task.PriorityNormal)
	require.NoError(t, s.SaveTask(ctx, recent))

	require.NoError(t, s.Cleanup(ctx, 7*24*time.Hour))

	_, err := s.GetTask(ctx, old.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetSnapshot(ctx, old.ID, "latest")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetTask(ctx, recent.ID)
	require.NoError(t, err)
}

func TestCleanupSparesNeedsHumanReviewRegardlessOfAge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	parked := task.New("parked", "c", task.PriorityNormal)
	parked.State = task.StateNeedsHumanReview
	oldCompletion := time.Now().UTC().Add(-30 * 24 * time.Hour)
	parked.CompletedAt = &oldCompletion
	require.NoError(t, s.SaveTask(ctx, parked))

	require.NoError(t, s.Cleanup(ctx, 7*24*time.Hour))

	got, err := s.GetTask(ctx, parked.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateNeedsHumanReview, got.State)
}
