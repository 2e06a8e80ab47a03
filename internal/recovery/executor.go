package recovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/sysmetrics"
	"github.com/maumercado/task-queue-go/internal/task"
)

// memoryHogThreshold is the per-worker RSS above which manageMemoryPressure
// considers a worker worth restarting, matching the original's 500MB cutoff.
const memoryHogThreshold int64 = 500 * 1024 * 1024

// maxMemoryHogsRestarted caps how many workers one pass restarts, matching
// the original's memory_hogs[:2].
const maxMemoryHogsRestarted = 2

// Executor runs recovery Actions, generalizing RecoveryExecutor. inFlight
// dedups concurrent attempts at the same remediation, mirroring
// active_recoveries.
type Executor struct {
	cfg *config.Config
	st  store.Store
	q   *queue.Queue

	mu       sync.Mutex
	inFlight map[string]bool

	events events.Publisher
}

// NewExecutor constructs an Executor.
func NewExecutor(cfg *config.Config, st store.Store, q *queue.Queue) *Executor {
	return &Executor{cfg: cfg, st: st, q: q, inFlight: make(map[string]bool)}
}

// SetPublisher attaches an events.Publisher the Executor announces raised
// alerts on. Nil (the default) disables event emission.
func (e *Executor) SetPublisher(pub events.Publisher) { e.events = pub }

// Execute runs a, skipping it if an identical Action is already in flight.
// Returns whether the remediation resolved the underlying condition.
func (e *Executor) Execute(ctx context.Context, a Action) bool {
	key := a.key()

	e.mu.Lock()
	if e.inFlight[key] {
		e.mu.Unlock()
		logger.Debug().Str("action", string(a.Type)).Msg("recovery action already in progress")
		return false
	}
	e.inFlight[key] = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inFlight, key)
		e.mu.Unlock()
	}()

	ok, err := e.dispatch(ctx, a)
	if err != nil {
		logger.Error().Err(err).Str("action", string(a.Type)).Str("description", a.Description).Msg("recovery action error")
		return false
	}

	if ok {
		logger.Info().Str("action", string(a.Type)).Msg(a.Description)
	} else {
		logger.Warn().Str("action", string(a.Type)).Msg(a.Description)
	}
	return ok
}

func (e *Executor) dispatch(ctx context.Context, a Action) (bool, error) {
	switch a.Type {
	case ActionCleanupDiskSpace:
		return e.cleanupDiskSpace(ctx, a)
	case ActionManageMemoryPressure:
		return e.manageMemoryPressure(ctx)
	case ActionRestartStuckWorker:
		return e.restartWorker(ctx, a.WorkerID)
	case ActionRecoverOrphanedTask:
		return e.recoverOrphanedTask(ctx, a.TaskID)
	case ActionHandleNetworkFailure:
		return e.handleNetworkFailure(ctx)
	case ActionInvestigateSystemError:
		return e.investigateSystemError(ctx, a)
	default:
		return false, fmt.Errorf("recovery: unknown action type %q", a.Type)
	}
}

func (e *Executor) cleanupDiskSpace(ctx context.Context, a Action) (bool, error) {
	freed, err := cleanupTempFiles(e.cfg.Paths.BaseDir)
	if err != nil {
		logger.Error().Err(err).Msg("temp file cleanup error")
	}

	retention := time.Duration(e.cfg.Resources.MaxLogFiles) * 24 * time.Hour
	if err := e.st.Cleanup(ctx, retention); err != nil {
		logger.Error().Err(err).Msg("store cleanup error")
	}

	logger.Info().Float64("freed_mb", float64(freed)/(1024*1024)).Msg("disk cleanup completed")

	snap, err := sysmetrics.Sample(ctx, e.cfg.Paths.BaseDir)
	if err != nil {
		return false, err
	}

	threshold := e.cfg.Resources.MinDiskSpaceGB
	if v, ok := a.Metadata["threshold_gb"].(float64); ok {
		threshold = v
	}
	if snap.DiskFreeGB >= threshold {
		return true, nil
	}

	e.alert(ctx, store.AlertP1, "critical disk space",
		fmt.Sprintf("disk space still low after cleanup: %.1fGB remaining", snap.DiskFreeGB), "", "", nil)
	return false, nil
}

// cleanupTempFiles removes stale atomic-write temp files left behind by a
// crash mid-rename in internal/queue or internal/store, returning bytes
// freed. It does not prune empty directories: the queue and store own fixed
// subdirectories (pending/, processing/, dlq/) that must persist empty
// between runs, so directory removal isn't safe to do generically here.
func cleanupTempFiles(baseDir string) (int64, error) {
	var freed int64

	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		if info, statErr := d.Info(); statErr == nil {
			freed += info.Size()
		}
		_ = os.Remove(path)
		return nil
	})
	return freed, err
}

func (e *Executor) manageMemoryPressure(ctx context.Context) (bool, error) {
	active, err := e.st.GetActiveWorkers(ctx, activeWorkerWindow)
	if err != nil {
		return false, err
	}

	var hogs []*store.WorkerStatus
	for _, w := range active {
		if w.RSSBytes > memoryHogThreshold {
			hogs = append(hogs, w)
		}
	}
	sort.Slice(hogs, func(i, j int) bool { return hogs[i].RSSBytes > hogs[j].RSSBytes })
	if len(hogs) > maxMemoryHogsRestarted {
		hogs = hogs[:maxMemoryHogsRestarted]
	}

	restarted := 0
	for _, w := range hogs {
		if ok, _ := e.restartWorker(ctx, w.WorkerID); ok {
			restarted++
		}
	}

	if restarted > 0 {
		logger.Info().Int("count", restarted).Msg("restarted memory-intensive workers")
	}
	return restarted > 0, nil
}

// restartWorker cannot signal an individual goroutine worker to exit from
// here — every Pool worker shares one OS process. It raises the alert the
// supervisor's watchdog acts on, mirroring the original's own comment that
// the worker restarts "automatically via supervisor" once killed.
func (e *Executor) restartWorker(ctx context.Context, workerID string) (bool, error) {
	if workerID == "" {
		return false, fmt.Errorf("recovery: restartWorker called with empty worker id")
	}
	e.alert(ctx, store.AlertP2, fmt.Sprintf("worker %s restart requested", workerID),
		fmt.Sprintf("worker %s flagged for restart by the recovery loop", workerID), "", workerID, nil)
	return true, nil
}

func (e *Executor) recoverOrphanedTask(ctx context.Context, taskID string) (bool, error) {
	t, err := e.st.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}

	sm := task.NewStateMachine(t, nil)
	if err := sm.Requeue(); err != nil {
		return false, err
	}
	t.AddError("recovered from orphaned processing state", "recovery")

	if err := e.st.SaveTask(ctx, t); err != nil {
		return false, err
	}
	if err := e.q.Enqueue(t); err != nil {
		return false, err
	}
	if err := e.q.RemoveOrphan(t.ID); err != nil {
		logger.Warn().Err(err).Str("task_id", t.ID).Msg("failed to remove stale processing queue entry")
	}

	logger.Info().Str("task_id", t.ID).Msg("recovered orphaned task")
	return true, nil
}

func (e *Executor) handleNetworkFailure(ctx context.Context) (bool, error) {
	processing, err := e.st.GetTasksByState(ctx, task.StateProcessing)
	if err != nil {
		return false, err
	}

	paused := 0
	for _, t := range processing {
		sm := task.NewStateMachine(t, nil)
		if err := sm.Pause("network connectivity issues detected"); err != nil {
			logger.Warn().Err(err).Str("task_id", t.ID).Msg("failed to pause task for network failure")
			continue
		}
		if err := e.st.SaveTask(ctx, t); err != nil {
			logger.Warn().Err(err).Str("task_id", t.ID).Msg("failed to persist paused task")
			continue
		}
		// Matches worker.outcomePause: a PAUSED task must not linger in
		// processing/, or the orphaned-task health check (which only scans
		// StateProcessing) would never flag it again once it genuinely stalls.
		if err := e.q.Park(t.ID); err != nil {
			logger.Warn().Err(err).Str("task_id", t.ID).Msg("failed to park paused task")
		}
		paused++
	}

	e.alert(ctx, store.AlertP1, "network connectivity failure",
		fmt.Sprintf("paused %d tasks due to network issues", paused), "", "", nil)
	return true, nil
}

func (e *Executor) investigateSystemError(ctx context.Context, a Action) (bool, error) {
	meta := map[string]interface{}{"error": a.Metadata["error"]}

	if snap, err := sysmetrics.Sample(ctx, e.cfg.Paths.BaseDir); err == nil {
		meta["disk_free_gb"] = snap.DiskFreeGB
		meta["memory_usage_percent"] = snap.MemoryUsagePercent
		meta["cpu_usage_percent"] = snap.CPUUsagePercent
	}

	e.alert(ctx, store.AlertP1, "system diagnostic required",
		fmt.Sprintf("system error detected: %v", a.Metadata["error"]), "", "", meta)
	return true, nil
}

func (e *Executor) alert(ctx context.Context, level store.AlertLevel, title, message, taskID, workerID string, metadata map[string]interface{}) {
	alert := &store.Alert{
		ID:        fmt.Sprintf("%s-%d", level, time.Now().UnixNano()),
		Level:     level,
		Title:     title,
		Message:   message,
		TaskID:    taskID,
		WorkerID:  workerID,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := e.st.SaveAlert(ctx, alert); err != nil {
		logger.Error().Err(err).Msg("failed to save alert")
	}

	if e.events != nil {
		evt := events.NewEvent(events.EventAlertRaised, events.AlertEventData(string(level), title, message, taskID, workerID))
		if err := e.events.Publish(ctx, evt); err != nil {
			logger.Debug().Err(err).Msg("failed to publish alert event")
		}
	}
}
