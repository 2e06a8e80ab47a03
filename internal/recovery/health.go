package recovery

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/sysmetrics"
	"github.com/maumercado/task-queue-go/internal/task"
)

const (
	// activeWorkerWindow bounds how recently a worker must have heartbeat to
	// count as currently alive (used for the orphaned-task check).
	activeWorkerWindow = 5 * time.Minute
	// workerRosterWindow is the wider candidate window stuckWorkers scans
	// before applying its own stuckWorkerSilence cutoff — using
	// activeWorkerWindow here would filter out the very workers a silence
	// check is meant to catch.
	workerRosterWindow  = 24 * time.Hour
	stuckWorkerSilence  = 10 * time.Minute
	orphanedTaskAge     = 6 * time.Hour
	networkCheckTimeout = 10 * time.Second
)

// HealthMonitor samples host and task-store health and proposes Actions,
// generalizing SystemHealthMonitor.check_system_health.
type HealthMonitor struct {
	cfg    *config.Config
	st     store.Store
	events events.Publisher
}

// NewHealthMonitor constructs a HealthMonitor reading cfg's resource
// thresholds and st for worker/task state.
func NewHealthMonitor(cfg *config.Config, st store.Store) *HealthMonitor {
	return &HealthMonitor{cfg: cfg, st: st}
}

// SetPublisher attaches an events.Publisher the monitor announces host
// resource snapshots on. Nil (the default) disables event emission.
func (h *HealthMonitor) SetPublisher(pub events.Publisher) { h.events = pub }

func (h *HealthMonitor) publish(ctx context.Context, evt *events.Event) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, evt); err != nil {
		logger.Debug().Err(err).Str("event_type", string(evt.Type)).Msg("failed to publish event")
	}
}

// Check runs every health check and returns the resulting Actions sorted by
// ascending Priority, matching check_system_health's sort before execution.
func (h *HealthMonitor) Check(ctx context.Context) []Action {
	var actions []Action

	if snap, err := sysmetrics.Sample(ctx, h.cfg.Paths.BaseDir); err != nil {
		logger.Error().Err(err).Msg("system health check: metrics sample failed")
		actions = append(actions, Action{
			Type:        ActionInvestigateSystemError,
			Priority:    1,
			Description: fmt.Sprintf("system health check failed: %v", err),
			Metadata:    map[string]interface{}{"error": err.Error()},
		})
	} else {
		metrics.RecordSystemSnapshot(snap.DiskFreeGB, snap.MemoryUsagePercent, snap.CPUUsagePercent)
		h.publish(ctx, events.NewEvent(events.EventSystemMetrics,
			events.SystemMetricsData(snap.DiskFreeGB, snap.MemoryUsagePercent, snap.CPUUsagePercent)))
		actions = append(actions, h.resourceActions(snap)...)
	}

	for _, w := range h.stuckWorkers(ctx) {
		actions = append(actions, Action{
			Type:        ActionRestartStuckWorker,
			Priority:    1,
			Description: fmt.Sprintf("worker %s appears stuck", w.WorkerID),
			WorkerID:    w.WorkerID,
		})
	}

	for _, t := range h.orphanedTasks(ctx) {
		actions = append(actions, Action{
			Type:        ActionRecoverOrphanedTask,
			Priority:    2,
			Description: fmt.Sprintf("task %s appears orphaned", t.ID),
			TaskID:      t.ID,
		})
	}

	if !networkReachable(ctx) {
		actions = append(actions, Action{
			Type:        ActionHandleNetworkFailure,
			Priority:    1,
			Description: "network connectivity issues detected",
		})
	}

	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Priority < actions[j].Priority })
	return actions
}

func (h *HealthMonitor) resourceActions(snap sysmetrics.Snapshot) []Action {
	var actions []Action

	if snap.DiskFreeGB < h.cfg.Resources.MinDiskSpaceGB {
		actions = append(actions, Action{
			Type:        ActionCleanupDiskSpace,
			Priority:    1,
			Description: fmt.Sprintf("low disk space: %.1fGB remaining", snap.DiskFreeGB),
			Metadata:    map[string]interface{}{"threshold_gb": h.cfg.Resources.MinDiskSpaceGB},
		})
	}

	if snap.MemoryUsagePercent > 90 {
		actions = append(actions, Action{
			Type:        ActionManageMemoryPressure,
			Priority:    2,
			Description: fmt.Sprintf("high memory usage: %.1f%%", snap.MemoryUsagePercent),
			Metadata:    map[string]interface{}{"usage_percent": snap.MemoryUsagePercent},
		})
	}

	return actions
}

// stuckWorkers reports active workers whose last heartbeat is stale. The
// original's PID-liveness and per-process CPU-usage checks don't translate:
// every Pool worker goroutine reports the same os.Getpid(), so heartbeat
// silence is the only meaningful stuck signal here.
func (h *HealthMonitor) stuckWorkers(ctx context.Context) []*store.WorkerStatus {
	workers, err := h.st.GetActiveWorkers(ctx, workerRosterWindow)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active workers")
		return nil
	}

	now := time.Now().UTC()
	var stuck []*store.WorkerStatus
	for _, w := range workers {
		if now.Sub(w.LastHeartbeat) > stuckWorkerSilence {
			stuck = append(stuck, w)
		}
	}
	return stuck
}

func (h *HealthMonitor) orphanedTasks(ctx context.Context) []*task.Task {
	processing, err := h.st.GetTasksByState(ctx, task.StateProcessing)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list processing tasks")
		return nil
	}

	active, err := h.st.GetActiveWorkers(ctx, activeWorkerWindow)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active workers")
	}
	activeIDs := make(map[string]bool, len(active))
	for _, w := range active {
		activeIDs[w.WorkerID] = true
	}

	var orphaned []*task.Task
	for _, t := range processing {
		if t.StartedAt == nil || time.Since(*t.StartedAt) <= orphanedTaskAge {
			continue
		}
		if t.AssignedWorker == nil || !activeIDs[*t.AssignedWorker] {
			orphaned = append(orphaned, t)
		}
	}
	return orphaned
}

// networkReachable is a var so tests can stub out the real ping, which may
// not be permitted or meaningful in a sandboxed test environment.
var networkReachable = func(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, networkCheckTimeout)
	defer cancel()
	cmd := exec.CommandContext(pingCtx, "ping", "-c", "1", "8.8.8.8")
	return cmd.Run() == nil
}
