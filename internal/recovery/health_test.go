package recovery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/task"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Paths.BaseDir = t.TempDir()
	cfg.Resources.MinDiskSpaceGB = -1 // never trip in a test sandbox
	cfg.Resources.MaxLogFiles = 7
	cfg.Worker.HealthCheckInterval = 10 * time.Millisecond
	return cfg
}

func withStubNetwork(t *testing.T, reachable bool) {
	t.Helper()
	orig := networkReachable
	networkReachable = func(context.Context) bool { return reachable }
	t.Cleanup(func() { networkReachable = orig })
}

func TestHealthMonitor_Check_FlagsStuckWorker(t *testing.T) {
	withStubNetwork(t, true)
	ctx := context.Background()
	st := newTestStore(t)
	cfg := newTestConfig(t)

	require.NoError(t, st.SaveWorkerStatus(ctx, &store.WorkerStatus{
		WorkerID:      "worker-stale",
		State:         store.WorkerRunning,
		LastHeartbeat: time.Now().UTC().Add(-20 * time.Minute),
	}))

	h := NewHealthMonitor(cfg, st)
	actions := h.Check(ctx)

	require.True(t, containsAction(actions, ActionRestartStuckWorker, "worker-stale"))
}

func TestHealthMonitor_Check_IgnoresFreshWorker(t *testing.T) {
	withStubNetwork(t, true)
	ctx := context.Background()
	st := newTestStore(t)
	cfg := newTestConfig(t)

	require.NoError(t, st.SaveWorkerStatus(ctx, &store.WorkerStatus{
		WorkerID:      "worker-fresh",
		State:         store.WorkerRunning,
		LastHeartbeat: time.Now().UTC(),
	}))

	h := NewHealthMonitor(cfg, st)
	actions := h.Check(ctx)

	require.False(t, containsAction(actions, ActionRestartStuckWorker, "worker-fresh"))
}

func TestHealthMonitor_Check_FlagsOrphanedTask(t *testing.T) {
	withStubNetwork(t, true)
	ctx := context.Background()
	st := newTestStore(t)
	cfg := newTestConfig(t)

	started := time.Now().UTC().Add(-7 * time.Hour)
	worker := "worker-gone"
	tk := task.New("orphan", "echo hi", task.PriorityNormal)
	tk.State = task.StateProcessing
	tk.StartedAt = &started
	tk.AssignedWorker = &worker
	require.NoError(t, st.SaveTask(ctx, tk))

	h := NewHealthMonitor(cfg, st)
	actions := h.Check(ctx)

	require.True(t, containsAction(actions, ActionRecoverOrphanedTask, tk.ID))
}

func TestHealthMonitor_Check_SkipsRecentlyStartedProcessingTask(t *testing.T) {
	withStubNetwork(t, true)
	ctx := context.Background()
	st := newTestStore(t)
	cfg := newTestConfig(t)

	started := time.Now().UTC().Add(-time.Minute)
	tk := task.New("fresh", "echo hi", task.PriorityNormal)
	tk.State = task.StateProcessing
	tk.StartedAt = &started
	require.NoError(t, st.SaveTask(ctx, tk))

	h := NewHealthMonitor(cfg, st)
	actions := h.Check(ctx)

	require.False(t, containsAction(actions, ActionRecoverOrphanedTask, tk.ID))
}

func TestHealthMonitor_Check_FlagsNetworkFailure(t *testing.T) {
	withStubNetwork(t, false)
	ctx := context.Background()
	st := newTestStore(t)
	cfg := newTestConfig(t)

	h := NewHealthMonitor(cfg, st)
	actions := h.Check(ctx)

	require.True(t, containsAction(actions, ActionHandleNetworkFailure, ""))
}

func TestHealthMonitor_Check_SortsByPriority(t *testing.T) {
	withStubNetwork(t, true)
	ctx := context.Background()
	st := newTestStore(t)
	cfg := newTestConfig(t)

	started := time.Now().UTC().Add(-7 * time.Hour)
	tk := task.New("orphan", "echo hi", task.PriorityNormal)
	tk.State = task.StateProcessing
	tk.StartedAt = &started
	require.NoError(t, st.SaveTask(ctx, tk))

	require.NoError(t, st.SaveWorkerStatus(ctx, &store.WorkerStatus{
		WorkerID:      "worker-stale",
		State:         store.WorkerRunning,
		LastHeartbeat: time.Now().UTC().Add(-20 * time.Minute),
	}))

	h := NewHealthMonitor(cfg, st)
	actions := h.Check(ctx)

	for i := 1; i < len(actions); i++ {
		require.LessOrEqual(t, actions[i-1].Priority, actions[i].Priority)
	}
}

func containsAction(actions []Action, actionType ActionType, id string) bool {
	for _, a := range actions {
		if a.Type != actionType {
			continue
		}
		if id == "" || a.TaskID == id || a.WorkerID == id {
			return true
		}
	}
	return false
}
