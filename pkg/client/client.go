package client

import (
	"context"
	"fmt"
	"time"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/task"
)

// Client is THE CORE's external interface boundary (spec.md §6): there is
// no admission network service, so submitting, listing, and retrying tasks
// all happen by operating on the same Store/Queue/DLQ files the supervisor
// itself reads and writes. Any caller with filesystem access to cfg.Paths
// can use Client the same way cmd/taskctl does.
type Client struct {
	st  store.Store
	q   *queue.Queue
	dlq *queue.DLQ
	pub events.Publisher
}

func (c *Client) publish(ctx context.Context, evt *events.Event) {
	if c.pub == nil {
		return
	}
	if err := c.pub.Publish(ctx, evt); err != nil {
		logger.Warn().Err(err).Str("event_type", string(evt.Type)).Msg("client: failed to publish event")
	}
}

// Open opens the Store, Queue, and DLQ a running (or not-yet-started)
// supervisor owns at cfg.Paths. It is safe to call while a supervisor
// process is running against the same paths: the Store is a single-writer
// bbolt file opened in shared-compatible mode and the Queue's claims are
// rename-based, so Client never races a live worker pool.
func Open(cfg *config.Config) (*Client, error) {
	st, err := store.Open(cfg.Paths.DBPath)
	if err != nil {
		return nil, fmt.Errorf("client: open store: %w", err)
	}

	q, err := queue.New(cfg.Paths.BaseDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("client: open queue: %w", err)
	}

	dlq, err := queue.NewDLQ(cfg.Paths.BaseDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("client: open dlq: %w", err)
	}

	// Best-effort: a taskctl-style caller is a separate process from the
	// supervisor, so the only way its mutations (submit, retry, resume) show
	// up on the supervisor's live status feed is over the shared Redis bus;
	// with redis disabled, events.New hands back a process-local MemoryBus
	// that nothing outside this Client will ever observe, which is fine —
	// the Store/Queue writes themselves are still the source of truth.
	pub, err := events.New(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("client: event publisher unavailable, continuing without live event publication")
		pub = nil
	}

	return &Client{st: st, q: q, dlq: dlq, pub: pub}, nil
}

// Close releases the underlying Store handle and event publisher.
func (c *Client) Close() error {
	if c.pub != nil {
		_ = c.pub.Close()
	}
	return c.st.Close()
}

// Submit saves t to the Store and enqueues it for claiming. Callers should
// construct t via task.New so it starts in StatePending with a fresh ID.
func (c *Client) Submit(ctx context.Context, t *task.Task) error {
	if err := c.st.SaveTask(ctx, t); err != nil {
		return fmt.Errorf("client: save task %s: %w", t.ID, err)
	}
	if err := c.q.Enqueue(t); err != nil {
		return fmt.Errorf("client: enqueue task %s: %w", t.ID, err)
	}
	metrics.RecordTaskSubmission(string(t.TaskType), t.Priority.String())
	c.publish(ctx, events.NewEvent(events.EventTaskSubmitted,
		events.TaskEventData(t.ID, string(t.TaskType), t.Priority.String(), nil)))
	return nil
}

// List returns every task in any of the given states, or every state known
// to the task lifecycle if none are given.
func (c *Client) List(ctx context.Context, states ...task.State) ([]*task.Task, error) {
	if len(states) == 0 {
		states = []task.State{
			task.StatePending,
			task.StateProcessing,
			task.StatePaused,
			task.StateWaitingUnban,
			task.StateRetrying,
			task.StateCompleted,
			task.StateFailed,
			task.StateNeedsHumanReview,
			task.StateAwaitingConfirmation,
		}
	}
	return c.st.GetTasksByState(ctx, states...)
}

// Get fetches a single task's current record from the Store.
func (c *Client) Get(ctx context.Context, taskID string) (*task.Task, error) {
	return c.st.GetTask(ctx, taskID)
}

// ListWorkers returns every worker whose heartbeat is newer than maxAge.
func (c *Client) ListWorkers(ctx context.Context, maxAge time.Duration) ([]*store.WorkerStatus, error) {
	return c.st.GetActiveWorkers(ctx, maxAge)
}

// ListAlerts returns every unresolved alert.
func (c *Client) ListAlerts(ctx context.Context) ([]*store.Alert, error) {
	return c.st.GetUnresolvedAlerts(ctx)
}

// ListDLQ returns every task that exhausted its retries and landed in the
// dead letter queue.
func (c *Client) ListDLQ() ([]*queue.DLQEntry, error) {
	return c.dlq.List()
}

// RetryDLQTask re-enqueues a single dead-lettered task and removes its DLQ
// entry.
func (c *Client) RetryDLQTask(taskID string) error {
	if err := c.dlq.Retry(c.q, taskID); err != nil {
		return fmt.Errorf("client: retry dlq task %s: %w", taskID, err)
	}
	c.publish(context.Background(), events.NewEvent(events.EventTaskRetrying,
		events.TaskEventData(taskID, "", "", map[string]interface{}{"source": "dlq"})))
	return nil
}

// ResumeTask requeues a PAUSED task: the "operator or recovery action to
// resume" spec §7 requires for output-too-large and network-failure pauses,
// since nothing inside the supervisor itself promotes PAUSED back to
// PENDING on its own. Returns an error if taskID is not currently PAUSED.
func (c *Client) ResumeTask(ctx context.Context, taskID string) (*task.Task, error) {
	t, err := c.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("client: get task %s: %w", taskID, err)
	}
	if t.State != task.StatePaused {
		return nil, fmt.Errorf("client: task %s is %s, not paused", taskID, t.State)
	}

	sm := task.NewStateMachine(t, nil)
	if err := sm.Requeue(); err != nil {
		return nil, fmt.Errorf("client: requeue task %s: %w", taskID, err)
	}
	if err := c.st.SaveTask(ctx, t); err != nil {
		return nil, fmt.Errorf("client: save task %s: %w", taskID, err)
	}
	if err := c.q.Enqueue(t); err != nil {
		return nil, fmt.Errorf("client: enqueue task %s: %w", taskID, err)
	}
	c.publish(ctx, events.NewEvent(events.EventTaskRetrying,
		events.TaskEventData(t.ID, string(t.TaskType), t.Priority.String(), map[string]interface{}{"source": "resume"})))
	return t, nil
}

// RetryAllDLQ retries every entry currently in the dead letter queue,
// continuing past individual failures and returning the count retried and
// the first error encountered, if any.
func (c *Client) RetryAllDLQ() (int, error) {
	entries, err := c.dlq.List()
	if err != nil {
		return 0, fmt.Errorf("client: list dlq: %w", err)
	}

	retried := 0
	var firstErr error
	for _, entry := range entries {
		if err := c.dlq.Retry(c.q, entry.Task.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.publish(context.Background(), events.NewEvent(events.EventTaskRetrying,
			events.TaskEventData(entry.Task.ID, string(entry.Task.TaskType), entry.Task.Priority.String(), map[string]interface{}{"source": "dlq"})))
		retried++
	}
	return retried, firstErr
}
