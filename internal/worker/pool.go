// Package worker implements the claim loop, assistant subprocess lifecycle,
// and heartbeat reporting for one worker slot pool. Grounded in the
// teacher's internal/worker/{pool,heartbeat}.go for the Go concurrency
// idiom (semaphore channel, sync.Map of in-flight tasks, ticker-based
// heartbeat) and original_source/worker.py for the task-execution semantics.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/ratelimit"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/task"
)

// claimPollInterval is how long the claim loop sleeps after finding the
// queue empty (or after a claim error) before trying again, matching spec
// §4.4's "sleep briefly (5s)".
const claimPollInterval = 5 * time.Second

// RateLimitRecorder is the narrow slice of ratelimit.Coordinator a Pool
// needs: folding a rate-limit signal detected mid-stream into the
// process-wide unban window, per spec §4.6 "Recording".
type RateLimitRecorder interface {
	Record(ctx context.Context, taskID string, info *ratelimit.Info)
}

// InteractionDetector judges whether an assistant result requires human
// confirmation and, if so, proposes an autonomous response. Spec §4.5.
type InteractionDetector func(resultText string) (needsInteraction bool, autoResponse string)

// runningTask tracks one task currently being executed by this pool.
type runningTask struct {
	task      *task.Task
	startedAt time.Time
}

// Pool owns a fixed number of worker goroutines, each repeatedly claiming
// and executing one task at a time from a shared Queue.
type Pool struct {
	id       string
	cfg      *config.Config
	q        *queue.Queue
	st       store.Store
	dlq      *queue.DLQ
	policy   *task.BackoffPolicy
	detector InteractionDetector
	executor *Executor
	events   events.Publisher
	rlRec    RateLimitRecorder

	currentTasks sync.Map // taskID -> *runningTask
	stopCh       chan struct{}
	wg           sync.WaitGroup

	tasksCompleted int64
	tasksFailed    int64
	countMu        sync.Mutex
}

// NewPool constructs a Pool. id defaults to a generated "worker-xxxxxxxx"
// when empty.
func NewPool(id string, cfg *config.Config, q *queue.Queue, st store.Store, dlq *queue.DLQ, detector InteractionDetector) *Pool {
	if id == "" {
		id = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	return &Pool{
		id:       id,
		cfg:      cfg,
		q:        q,
		st:       st,
		dlq:      dlq,
		policy:   retryPolicyFrom(cfg),
		detector: detector,
		executor: NewExecutor(),
		stopCh:   make(chan struct{}),
	}
}

func retryPolicyFrom(cfg *config.Config) *task.BackoffPolicy {
	return &task.BackoffPolicy{
		BaseDelay:                  cfg.Retry.BaseDelay,
		MaxDelay:                   cfg.Retry.MaxDelay,
		ExponentialBase:            cfg.Retry.ExponentialBase,
		DefaultUnbanWait:           cfg.Retry.DefaultUnbanWait,
		RateLimitBackoffMultiplier: cfg.Retry.RateLimitBackoffMultiplier,
	}
}

// SetPublisher attaches an events.Publisher the pool announces task and
// worker lifecycle events on. Nil (the default) disables event emission.
func (p *Pool) SetPublisher(pub events.Publisher) { p.events = pub }

// SetRateLimitRecorder attaches the RateLimitCoordinator a detected
// rate-limit signal is folded into. Nil (the default) means rate limits are
// only discovered later by the coordinator's own probe loop.
func (p *Pool) SetRateLimitRecorder(rec RateLimitRecorder) { p.rlRec = rec }

// publish emits evt if a Publisher is attached, swallowing the error into a
// debug log: a dropped lifecycle event must never fail the task it
// describes.
func (p *Pool) publish(ctx context.Context, evt *events.Event) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, evt); err != nil {
		logger.Debug().Err(err).Str("event_type", string(evt.Type)).Msg("failed to publish event")
	}
}

// ID returns the pool's worker id.
func (p *Pool) ID() string { return p.id }

// ActiveTasks returns the number of tasks currently executing.
func (p *Pool) ActiveTasks() int {
	count := 0
	p.currentTasks.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// Start spawns the claim-loop goroutine and the heartbeat goroutine. The
// pool processes one task at a time; the Supervisor runs multiple Pools
// (num_workers of them) for concurrency, matching spec §4.4's
// "one task per worker slot at a time" contract.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(2)
	go p.claimLoop(ctx)
	go p.heartbeatLoop(ctx)

	p.publish(ctx, events.NewEvent(events.EventWorkerJoined, events.WorkerEventData(p.id, string(store.WorkerRunning), nil)))
	logger.Info().Str("worker_id", p.id).Msg("worker started")
}

// Stop signals the pool to stop claiming new tasks and waits (bounded by
// worker.shutdowntimeout) for the in-flight task to snapshot and exit.
func (p *Pool) Stop(ctx context.Context) {
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Str("worker_id", p.id).Msg("worker stopped gracefully")
	case <-time.After(p.cfg.Worker.ShutdownTimeout):
		logger.Warn().Str("worker_id", p.id).Msg("worker shutdown timed out")
	case <-ctx.Done():
	}

	p.publish(context.Background(), events.NewEvent(events.EventWorkerLeft, events.WorkerEventData(p.id, string(store.WorkerTerminating), nil)))
}

func (p *Pool) claimLoop(ctx context.Context) {
	defer p.wg.Done()

	idleSince := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		t, err := p.q.Claim()
		if err == queue.ErrEmpty {
			select {
			case <-time.After(claimPollInterval):
				continue
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			logger.Error().Err(err).Str("worker_id", p.id).Msg("claim failed")
			time.Sleep(claimPollInterval)
			continue
		}

		metrics.RecordWorkerIdleTime(p.id, time.Since(idleSince).Seconds())
		p.runTask(ctx, t)
		idleSince = time.Now()
	}
}

func (p *Pool) runTask(ctx context.Context, t *task.Task) {
	rt := &runningTask{task: t, startedAt: time.Now().UTC()}
	p.currentTasks.Store(t.ID, rt)
	defer p.currentTasks.Delete(t.ID)

	p.publish(ctx, events.NewEvent(events.EventTaskStarted,
		events.TaskEventData(t.ID, string(t.TaskType), t.Priority.String(), map[string]interface{}{"worker_id": p.id})))

	start := time.Now()
	err := p.executor.Execute(ctx, t, p.executeTask)
	metrics.RecordWorkerBusyTime(p.id, time.Since(start).Seconds())
	if err != nil {
		log := logger.WithTaskAndWorker(t.ID, p.id)
		log.Error().Err(err).Msg("task execution error")
	}
}
