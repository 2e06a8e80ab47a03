package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/ratelimit"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/task"
)

func newTestPool(t *testing.T, detector InteractionDetector) (*Pool, *queue.Queue, store.Store) {
	t.Helper()
	dir := t.TempDir()

	q, err := queue.New(dir)
	require.NoError(t, err)

	dlq, err := queue.NewDLQ(dir)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{}
	cfg.Assistant.BinaryPath = "/bin/sh -c"
	cfg.Assistant.CLITimeout = 5 * time.Second
	cfg.Assistant.MaxOutputSize = 1024 * 1024
	cfg.Retry = config.RetryConfig{
		MaxRetries:                 3,
		BaseDelay:                  time.Millisecond,
		MaxDelay:                   time.Second,
		ExponentialBase:            2.0,
		DefaultUnbanWait:           time.Second,
		RateLimitBackoffMultiplier: 1.5,
	}
	cfg.Worker.ShutdownTimeout = time.Second

	p := NewPool("worker-test", cfg, q, st, dlq, detector)
	return p, q, st
}

func newShellTask(command string) *task.Task {
	tk := task.New("test-task", command, task.PriorityNormal)
	tk.MaxRetries = 3
	return tk
}

func TestExecuteTask_CompletesOnMarker(t *testing.T) {
	p, q, st := newTestPool(t, nil)
	tk := newShellTask(`echo '✅ TASK_COMPLETED'`)
	require.NoError(t, q.Enqueue(tk))

	claimed, err := q.Claim()
	require.NoError(t, err)

	require.NoError(t, p.executeTask(context.Background(), claimed))

	saved, err := st.GetTask(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateCompleted, saved.State)
}

func TestExecuteTask_RetriesOnMissingMarker(t *testing.T) {
	p, q, st := newTestPool(t, nil)
	tk := newShellTask(`echo 'still working'`)
	require.NoError(t, q.Enqueue(tk))

	claimed, err := q.Claim()
	require.NoError(t, err)

	require.NoError(t, p.executeTask(context.Background(), claimed))

	saved, err := st.GetTask(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateRetrying, saved.State)
	require.Equal(t, 1, saved.RetryCount)

	pending, err := q.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestExecuteTask_FailsAfterMaxRetries(t *testing.T) {
	p, q, st := newTestPool(t, nil)
	tk := newShellTask(`echo 'still working'`)
	tk.MaxRetries = 1
	require.NoError(t, q.Enqueue(tk))

	claimed, err := q.Claim()
	require.NoError(t, err)

	require.NoError(t, p.executeTask(context.Background(), claimed))

	saved, err := st.GetTask(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateFailed, saved.State)

	size, err := p.dlq.Size()
	require.NoError(t, err)
	require.Equal(t, 1, size)
}

func TestExecuteTask_WaitsUnbanOnRateLimitSignal(t *testing.T) {
	p, q, st := newTestPool(t, nil)
	tk := newShellTask(`echo 'Error: rate limit exceeded, please retry after 2 minutes'`)
	require.NoError(t, q.Enqueue(tk))

	claimed, err := q.Claim()
	require.NoError(t, err)

	require.NoError(t, p.executeTask(context.Background(), claimed))

	saved, err := st.GetTask(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateWaitingUnban, saved.State)
	require.NotNil(t, saved.NextAllowedAt)

	pending, err := q.ListPending()
	require.NoError(t, err)
	require.Empty(t, pending, "a WAITING_UNBAN task must not be claimable until the coordinator promotes it")

	processing, err := q.ListProcessing()
	require.NoError(t, err)
	require.Empty(t, processing)
}

func TestExecuteTask_SessionExpiredRoutesToRetrying(t *testing.T) {
	p, q, st := newTestPool(t, nil)
	tk := newShellTask(`echo 'Error: authentication failed, session expired, login required'`)
	require.NoError(t, q.Enqueue(tk))

	claimed, err := q.Claim()
	require.NoError(t, err)

	require.NoError(t, p.executeTask(context.Background(), claimed))

	saved, err := st.GetTask(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateRetrying, saved.State)
	require.Equal(t, 1, saved.RetryCount)
}

type fakeRateLimitRecorder struct {
	recorded []string
}

func (f *fakeRateLimitRecorder) Record(_ context.Context, taskID string, info *ratelimit.Info) {
	if info != nil {
		f.recorded = append(f.recorded, taskID)
	}
}

func TestExecuteTask_RateLimitSignalRecordedOnCoordinator(t *testing.T) {
	p, q, st := newTestPool(t, nil)
	rec := &fakeRateLimitRecorder{}
	p.SetRateLimitRecorder(rec)

	tk := newShellTask(`echo 'Error: rate limit exceeded, please retry after 2 minutes'`)
	require.NoError(t, q.Enqueue(tk))

	claimed, err := q.Claim()
	require.NoError(t, err)

	require.NoError(t, p.executeTask(context.Background(), claimed))

	saved, err := st.GetTask(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateWaitingUnban, saved.State)
	require.Equal(t, []string{claimed.ID}, rec.recorded)
}

func TestExecuteTask_DetectorRoutesToRetryingWithInteractionState(t *testing.T) {
	detector := func(resultText string) (bool, string) {
		return true, "y"
	}
	p, q, st := newTestPool(t, detector)
	tk := newShellTask(`echo '{"type":"result","result":"Please confirm (y/n)"}'`)
	require.NoError(t, q.Enqueue(tk))

	claimed, err := q.Claim()
	require.NoError(t, err)

	require.NoError(t, p.executeTask(context.Background(), claimed))

	saved, err := st.GetTask(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateRetrying, saved.State)
	require.Equal(t, 1, saved.RetryCount)
	needs, prompt, resp := saved.InteractionState()
	require.True(t, needs)
	require.Contains(t, prompt, "confirm")
	require.Equal(t, "y", resp)

	pending, err := q.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}
