package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/config"
)

func TestMemoryBus_PublishSubscribe_DeliversMatchingType(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, EventTaskCompleted)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskStarted, nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskCompleted, TaskEventData("t1", "lightweight", "normal", nil))))

	select {
	case got := <-ch:
		require.Equal(t, EventTaskCompleted, got.Type)
		require.Equal(t, "t1", got.Data["task_id"])
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}

	select {
	case got := <-ch:
		t.Fatalf("unexpected second event delivered: %v", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryBus_Subscribe_NoFilterReceivesEverything(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewEvent(EventWorkerJoined, nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventAlertRaised, AlertEventData("P1", "title", "msg", "", ""))))

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("expected event %d was not delivered", i)
		}
	}
}

func TestMemoryBus_ContextCancel_ClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after context cancellation")
	}
}

func TestMemoryBus_Close_ClosesAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	ch1, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	ch2, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Close())

	_, ok := <-ch1
	require.False(t, ok)
	_, ok = <-ch2
	require.False(t, ok)
}

func TestNew_DisabledConfigReturnsMemoryBus(t *testing.T) {
	pub, err := New(&config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	_, ok := pub.(*MemoryBus)
	require.True(t, ok)
}

func TestNew_NilConfigReturnsMemoryBus(t *testing.T) {
	pub, err := New(nil)
	require.NoError(t, err)
	_, ok := pub.(*MemoryBus)
	require.True(t, ok)
}
