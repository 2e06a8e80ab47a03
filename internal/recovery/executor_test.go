package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/task"
)

func newTestExecutor(t *testing.T) (*Executor, *queue.Queue, store.Store) {
	t.Helper()
	st := newTestStore(t)
	cfg := newTestConfig(t)

	q, err := queue.New(cfg.Paths.BaseDir)
	require.NoError(t, err)

	return NewExecutor(cfg, st, q), q, st
}

func TestExecutor_RecoverOrphanedTask_RequeuesAndClearsWorker(t *testing.T) {
	ctx := context.Background()
	e, q, st := newTestExecutor(t)

	started := time.Now().UTC().Add(-7 * time.Hour)
	worker := "worker-gone"
	tk := task.New("orphan", "echo hi", task.PriorityNormal)
	tk.State = task.StateProcessing
	tk.StartedAt = &started
	tk.AssignedWorker = &worker
	require.NoError(t, st.SaveTask(ctx, tk))

	ok := e.Execute(ctx, Action{Type: ActionRecoverOrphanedTask, TaskID: tk.ID})
	require.True(t, ok)

	got, err := st.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatePending, got.State)
	require.Nil(t, got.AssignedWorker)

	pending, err := q.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, tk.ID, pending[0].ID)
}

func TestExecutor_HandleNetworkFailure_PausesProcessingTasks(t *testing.T) {
	ctx := context.Background()
	e, q, st := newTestExecutor(t)

	tk := task.New("in-flight", "echo hi", task.PriorityNormal)
	require.NoError(t, q.Enqueue(tk))
	claimed, err := q.Claim()
	require.NoError(t, err)
	require.NoError(t, st.SaveTask(ctx, claimed))

	ok := e.Execute(ctx, Action{Type: ActionHandleNetworkFailure})
	require.True(t, ok)

	got, err := st.GetTask(ctx, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatePaused, got.State)

	processing, err := q.ListProcessing()
	require.NoError(t, err)
	require.Empty(t, processing, "a paused task must be parked out of processing/ too")

	alerts, err := st.GetUnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, store.AlertP1, alerts[0].Level)
}

func TestExecutor_RestartWorker_RaisesAlert(t *testing.T) {
	ctx := context.Background()
	e, _, st := newTestExecutor(t)

	ok := e.Execute(ctx, Action{Type: ActionRestartStuckWorker, WorkerID: "worker-x"})
	require.True(t, ok)

	alerts, err := st.GetUnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "worker-x", alerts[0].WorkerID)
}

func TestExecutor_Execute_DedupsConcurrentIdenticalAction(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestExecutor(t)

	e.mu.Lock()
	e.inFlight[Action{Type: ActionRestartStuckWorker, WorkerID: "worker-dup"}.key()] = true
	e.mu.Unlock()

	ok := e.Execute(ctx, Action{Type: ActionRestartStuckWorker, WorkerID: "worker-dup"})
	require.False(t, ok)
}

func TestExecutor_CleanupDiskSpace_RemovesStaleTempFiles(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestExecutor(t)

	stale := filepath.Join(e.cfg.Paths.BaseDir, ".tmp-leftover")
	require.NoError(t, os.WriteFile(stale, []byte("partial write"), 0o644))

	ok := e.Execute(ctx, Action{Type: ActionCleanupDiskSpace, Metadata: map[string]interface{}{"threshold_gb": -1.0}})
	require.True(t, ok)

	_, statErr := os.Stat(stale)
	require.True(t, os.IsNotExist(statErr))
}

func TestExecutor_InvestigateSystemError_RaisesDiagnosticAlert(t *testing.T) {
	ctx := context.Background()
	e, _, st := newTestExecutor(t)

	ok := e.Execute(ctx, Action{
		Type:     ActionInvestigateSystemError,
		Metadata: map[string]interface{}{"error": "boom"},
	})
	require.True(t, ok)

	alerts, err := st.GetUnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Contains(t, alerts[0].Message, "boom")
}
