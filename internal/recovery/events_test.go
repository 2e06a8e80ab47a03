package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/events"
)

func TestExecutor_RestartWorker_EmitsAlertEvent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestExecutor(t)

	bus := events.NewMemoryBus()
	e.SetPublisher(bus)

	sub, err := bus.Subscribe(ctx, events.EventAlertRaised)
	require.NoError(t, err)

	ok := e.Execute(ctx, Action{Type: ActionRestartStuckWorker, WorkerID: "worker-x"})
	require.True(t, ok)

	select {
	case evt := <-sub:
		require.Equal(t, events.EventAlertRaised, evt.Type)
		require.Equal(t, "worker-x", evt.Data["worker_id"])
	case <-time.After(time.Second):
		t.Fatal("expected alert.raised event")
	}
}

func TestHealthMonitor_Check_EmitsSystemMetricsEvent(t *testing.T) {
	withStubNetwork(t, true)
	ctx := context.Background()
	st := newTestStore(t)
	cfg := newTestConfig(t)

	h := NewHealthMonitor(cfg, st)
	bus := events.NewMemoryBus()
	h.SetPublisher(bus)

	sub, err := bus.Subscribe(ctx, events.EventSystemMetrics)
	require.NoError(t, err)

	h.Check(ctx)

	select {
	case evt := <-sub:
		require.Equal(t, events.EventSystemMetrics, evt.Type)
		require.Contains(t, evt.Data, "disk_free_gb")
	case <-time.After(time.Second):
		t.Fatal("expected system.metrics event")
	}
}
