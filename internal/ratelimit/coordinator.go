package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/task"
)

// waitingPollInterval is how often the recovery loop re-scans WAITING_UNBAN
// tasks for ones whose individual backoff has elapsed.
const waitingPollInterval = 30 * time.Second

// historyRetention bounds how long a per-task rate-limit record is kept
// once detected, matching _manage_global_rate_limits' 24-hour cleanup.
const historyRetention = 24 * time.Hour

// Coordinator tracks a process-wide rate-limit window and recovers
// WAITING_UNBAN tasks once both it and their own next_allowed_at have
// cleared. Generalizes original_source/rate_limit_manager.py's
// WaitingUnbanManager from an asyncio task trio to three goroutines sharing
// one mutex-guarded window.
type Coordinator struct {
	st     store.Store
	q      *queue.Queue
	prober *Prober

	probeFloor   time.Duration
	probeCeiling time.Duration
	shrinkWindow time.Duration
	defaultWait  time.Duration

	mu            sync.Mutex
	globalUnbanAt *time.Time
	history       map[string]*Info

	events events.Publisher

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCoordinator constructs a Coordinator wired to cfg's rate-limit tuning,
// the Store for task state, and the Queue for re-syncing recovered tasks.
func NewCoordinator(cfg *config.Config, st store.Store, q *queue.Queue) *Coordinator {
	return &Coordinator{
		st:           st,
		q:            q,
		prober:       NewProber(cfg.Assistant.BinaryPath, cfg.RateLimit.ProbeFloor),
		probeFloor:   cfg.RateLimit.ProbeFloor,
		probeCeiling: cfg.RateLimit.ProbeCeiling,
		shrinkWindow: cfg.RateLimit.ShrinkWindow,
		defaultWait:  cfg.Retry.DefaultUnbanWait,
		history:      make(map[string]*Info),
		stopCh:       make(chan struct{}),
	}
}

// SetPublisher attaches an events.Publisher the Coordinator announces
// alert.raised and global rate-limit worker.paused/worker.resumed
// transitions on. Nil (the default) disables event emission.
func (c *Coordinator) SetPublisher(pub events.Publisher) { c.events = pub }

// publish emits evt if a Publisher is attached, swallowing the error into a
// debug log.
func (c *Coordinator) publish(ctx context.Context, evt *events.Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, evt); err != nil {
		logger.Debug().Err(err).Str("event_type", string(evt.Type)).Msg("failed to publish event")
	}
}

// Start spawns the recovery, probe and history-pruning loops.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(3)
	go c.recoveryLoop(ctx)
	go c.probeLoop(ctx)
	go c.pruneLoop(ctx)
}

// Stop signals every loop to exit and waits for them.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Record stores a rate-limit signal observed directly during a task's
// execution (as opposed to a probe) and folds it into the global unban
// window, matching record_rate_limit.
func (c *Coordinator) Record(ctx context.Context, taskID string, info *Info) {
	if info == nil {
		return
	}
	c.mu.Lock()
	c.history[taskID] = info
	c.mu.Unlock()
	c.updateGlobalUnban(ctx, info)
}

// EstimatedRecovery returns the best known recovery time for taskID: its own
// recorded rate-limit signal if any, otherwise the global unban time.
func (c *Coordinator) EstimatedRecovery(taskID string) *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.history[taskID]; ok {
		at := info.DetectedAt.Add(info.RetryAfter)
		return &at
	}
	return c.globalUnbanAt
}

func (c *Coordinator) recoveryLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(waitingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.recoverReadyTasks(ctx)
		}
	}
}

func (c *Coordinator) recoverReadyTasks(ctx context.Context) {
	waiting, err := c.st.GetTasksByState(ctx, task.StateWaitingUnban)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list waiting_unban tasks")
		return
	}
	if len(waiting) == 0 {
		return
	}

	now := time.Now().UTC()
	globallyUnbanned := c.isGloballyUnbanned(now)
	for _, t := range waiting {
		if t.NextAllowedAt == nil || t.NextAllowedAt.After(now) {
			continue
		}
		if !globallyUnbanned {
			logger.Debug().Str("task_id", t.ID).Msg("task ready but global rate limit still active")
			continue
		}
		c.recoverTask(ctx, t)
	}
}

func (c *Coordinator) isGloballyUnbanned(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalUnbanAt == nil || !now.Before(*c.globalUnbanAt)
}

func (c *Coordinator) recoverTask(ctx context.Context, t *task.Task) {
	sm := task.NewStateMachine(t, nil)
	if err := sm.Requeue(); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to requeue recovered task")
		return
	}
	if err := c.st.SaveTask(ctx, t); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to persist recovered task")
		return
	}
	if err := c.q.Enqueue(t); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to sync recovered task into queue")
		return
	}

	logger.Info().Str("task_id", t.ID).Msg("task recovered from waiting_unban")
	c.alert(ctx, store.AlertP3, fmt.Sprintf("task %s recovered", t.ID),
		fmt.Sprintf("task %q recovered from rate limit and is ready for processing", t.Name), t.ID, nil)
}

func (c *Coordinator) probeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		wait := c.nextProbeWait()
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(wait):
		}

		if !c.shouldProbe(ctx) {
			continue
		}

		available, info := c.prober.Probe(ctx, c.defaultWait)
		if available {
			c.clearGlobalUnban(ctx)
			continue
		}
		if info != nil {
			c.updateGlobalUnban(ctx, info)
		}
	}
}

func (c *Coordinator) shouldProbe(ctx context.Context) bool {
	waiting, err := c.st.GetTasksByState(ctx, task.StateWaitingUnban)
	if err != nil {
		return false
	}
	if len(waiting) > 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalUnbanAt != nil
}

// nextProbeWait mirrors _calculate_probe_wait_time: probe at probeFloor
// cadence ordinarily, narrowing toward probeCeiling as the global unban
// time approaches within shrinkWindow, and backing off under a repeated
// probe failure streak.
func (c *Coordinator) nextProbeWait() time.Duration {
	c.mu.Lock()
	globalUnbanAt := c.globalUnbanAt
	c.mu.Unlock()

	base := c.probeFloor
	if c.prober.ConsecutiveFailures() > 3 {
		base *= 2
	}

	if globalUnbanAt == nil {
		return base
	}

	remaining := time.Until(*globalUnbanAt)
	if remaining <= 0 {
		return c.probeCeiling
	}
	if remaining < c.shrinkWindow {
		scaled := remaining / 5
		if scaled < c.probeCeiling {
			return c.probeCeiling
		}
		return scaled
	}
	return base
}

func (c *Coordinator) updateGlobalUnban(ctx context.Context, info *Info) {
	unbanAt := info.DetectedAt.Add(info.RetryAfter)

	c.mu.Lock()
	shouldUpdate := c.globalUnbanAt == nil || unbanAt.After(*c.globalUnbanAt)
	if shouldUpdate {
		c.globalUnbanAt = &unbanAt
	}
	c.mu.Unlock()

	if !shouldUpdate {
		return
	}

	logger.Warn().
		Str("limit_type", string(info.LimitType)).
		Time("unban_at", unbanAt).
		Msg("global rate limit updated")

	c.alert(ctx, store.AlertP2, "assistant service rate limited",
		fmt.Sprintf("rate limit detected: %s. expected recovery %s", info.LimitType, unbanAt.Format(time.RFC3339)),
		"", map[string]interface{}{
			"limit_type":  string(info.LimitType),
			"retry_after": info.RetryAfter.String(),
			"confidence":  info.Confidence,
			"raw_message": info.RawMessage,
		})

	c.publish(ctx, events.NewEvent(events.EventWorkerPaused, events.WorkerEventData(
		"all", string(store.WorkerPaused), map[string]interface{}{
			"reason":   string(info.LimitType),
			"unban_at": unbanAt.Format(time.RFC3339),
			"scope":    "global",
		})))
}

func (c *Coordinator) clearGlobalUnban(ctx context.Context) {
	c.mu.Lock()
	hadLimit := c.globalUnbanAt != nil
	c.globalUnbanAt = nil
	c.mu.Unlock()

	if !hadLimit {
		return
	}

	waiting, err := c.st.GetTasksByState(ctx, task.StateWaitingUnban)
	if err != nil {
		return
	}

	logger.Info().Int("waiting_tasks", len(waiting)).Msg("assistant service recovered")
	if len(waiting) > 0 {
		c.alert(ctx, store.AlertP3, "assistant service recovered",
			fmt.Sprintf("service is available again, %d tasks ready for recovery", len(waiting)), "", nil)
	}

	c.publish(ctx, events.NewEvent(events.EventWorkerResumed, events.WorkerEventData(
		"all", string(store.WorkerRunning), map[string]interface{}{"scope": "global"})))
}

func (c *Coordinator) pruneLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.prune()
		}
	}
}

func (c *Coordinator) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.globalUnbanAt != nil && time.Now().UTC().After(c.globalUnbanAt.Add(5*time.Minute)) {
		c.globalUnbanAt = nil
	}

	cutoff := time.Now().UTC().Add(-historyRetention)
	for id, info := range c.history {
		if info.DetectedAt.Before(cutoff) {
			delete(c.history, id)
		}
	}
}

func (c *Coordinator) alert(ctx context.Context, level store.AlertLevel, title, message, taskID string, metadata map[string]interface{}) {
	a := &store.Alert{
		ID:        fmt.Sprintf("%s-%d", level, time.Now().UnixNano()),
		Level:     level,
		Title:     title,
		Message:   message,
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := c.st.SaveAlert(ctx, a); err != nil {
		logger.Error().Err(err).Msg("failed to save alert")
	}
	c.publish(ctx, events.NewEvent(events.EventAlertRaised, events.AlertEventData(string(level), title, message, taskID, "")))
}
