package worker

import (
	"context"
	"os"
	"time"

	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/sysmetrics"
)

// heartbeatLoop periodically records this pool's liveness through the
// Store, replacing the teacher's Redis SET-with-TTL with a durable row the
// RecoveryLoop's stuck-worker check can read back via
// store.GetActiveWorkers. Generalizes the teacher's ticker-based
// heartbeatLoop in internal/worker/heartbeat.go.
func (p *Pool) heartbeatLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Worker.HeartbeatInterval)
	defer ticker.Stop()

	p.sendHeartbeat(ctx, store.WorkerSpawning)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.sendHeartbeat(ctx, store.WorkerTerminating)
			return
		case <-ticker.C:
			p.sendHeartbeat(ctx, store.WorkerRunning)
		}
	}
}

func (p *Pool) sendHeartbeat(ctx context.Context, state store.WorkerState) {
	currentTaskID := ""
	p.currentTasks.Range(func(_, v interface{}) bool {
		if rt, ok := v.(*runningTask); ok {
			currentTaskID = rt.task.ID
		}
		return false
	})

	if currentTaskID != "" && state == store.WorkerRunning {
		// keep reporting RUNNING while a task is in flight; state only
		// reflects idle/spawning/terminating otherwise.
	}

	p.countMu.Lock()
	completed, failed := p.tasksCompleted, p.tasksFailed
	p.countMu.Unlock()

	rss, err := sysmetrics.ProcessRSSBytes()
	if err != nil {
		logger.Debug().Err(err).Msg("failed to sample process RSS for heartbeat")
	}

	status := &store.WorkerStatus{
		WorkerID:       p.id,
		PID:            os.Getpid(),
		State:          state,
		CurrentTaskID:  currentTaskID,
		LastHeartbeat:  time.Now().UTC(),
		RSSBytes:       rss,
		TasksCompleted: int(completed),
		TasksFailed:    int(failed),
	}

	if err := p.st.SaveWorkerStatus(ctx, status); err != nil {
		logger.Error().Err(err).Str("worker_id", p.id).Msg("failed to save heartbeat")
	}
}

func (p *Pool) recordCompletion(success bool) {
	p.countMu.Lock()
	defer p.countMu.Unlock()
	if success {
		p.tasksCompleted++
	} else {
		p.tasksFailed++
	}
}
