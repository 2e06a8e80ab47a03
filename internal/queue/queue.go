// Package queue implements the file-backed priority queue described in
// spec §4.2: two directories, pending/ and processing/, where the atomic
// rename of a task's file from one to the other is the sole synchronization
// primitive conferring exclusive ownership.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/task"
)

// ErrEmpty is returned by Claim when no claimable task is currently ready.
var ErrEmpty = errors.New("queue empty")

// Queue is the pending/processing directory pair.
type Queue struct {
	pendingDir    string
	processingDir string

	pub events.Publisher
}

// New opens (creating if absent) a Queue rooted at baseDir.
func New(baseDir string) (*Queue, error) {
	q := &Queue{
		pendingDir:    filepath.Join(baseDir, "pending"),
		processingDir: filepath.Join(baseDir, "processing"),
	}
	for _, dir := range []string{q.pendingDir, q.processingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("queue: create %s: %w", dir, err)
		}
	}
	return q, nil
}

// SetPublisher attaches an events.Publisher the Queue announces depth
// changes on, so status-surface subscribers see queue.depth events without
// polling /api/v1/queue.
func (q *Queue) SetPublisher(pub events.Publisher) { q.pub = pub }

func (q *Queue) pendingPath(id string) string    { return filepath.Join(q.pendingDir, id+".json") }
func (q *Queue) processingPath(id string) string { return filepath.Join(q.processingDir, id+".json") }

// atomicWrite writes data to path via a temp file in the same directory
// followed by rename, so readers never observe a torn write. Mirrors
// original_source/utils.py's atomic_write.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Enqueue writes t's file into pending/, making it claimable.
func (q *Queue) Enqueue(t *task.Task) error {
	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("queue: marshal task %s: %w", t.ID, err)
	}
	if err := atomicWrite(q.pendingPath(t.ID), data); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", t.ID, err)
	}
	q.refreshDepthMetric()
	return nil
}

// Claim atomically moves the highest-priority, oldest ready candidate from
// pending/ to processing/ and returns it. The rename is the synchronization
// primitive: whichever caller's rename succeeds owns the task; a rename
// failure (another claimant won, or the file was removed) is not an error —
// Claim simply proceeds to the next candidate. Returns ErrEmpty if nothing
// is currently claimable.
func (q *Queue) Claim() (*task.Task, error) {
	candidates, err := q.listSorted(q.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("queue: list pending: %w", err)
	}

	for _, t := range candidates {
		src := q.pendingPath(t.ID)
		dst := q.processingPath(t.ID)

		if err := os.Rename(src, dst); err != nil {
			if os.IsNotExist(err) {
				// Another worker already claimed (or the file is gone).
				continue
			}
			return nil, fmt.Errorf("queue: claim %s: %w", t.ID, err)
		}

		if t.NextAllowedAt != nil && t.NextAllowedAt.After(time.Now().UTC()) {
			// Not ready yet; give it back and keep scanning.
			if err := os.Rename(dst, src); err != nil {
				return nil, fmt.Errorf("queue: release not-ready %s: %w", t.ID, err)
			}
			continue
		}

		metrics.RecordQueueLatency(t.Priority.String(), time.Since(t.CreatedAt).Seconds())
		q.refreshDepthMetric()
		logger.Debug().Str("task_id", t.ID).Str("priority", t.Priority.String()).Msg("task claimed")
		return t, nil
	}

	return nil, ErrEmpty
}

// refreshDepthMetric re-samples pending/ by priority into the QueueDepth
// gauge. Best-effort: a list failure here shouldn't fail the Enqueue/Claim
// call it's attached to.
func (q *Queue) refreshDepthMetric() {
	pending, err := q.list(q.pendingDir)
	if err != nil {
		return
	}
	counts := make(map[string]float64)
	depths := make(map[string]int64)
	for _, t := range pending {
		counts[t.Priority.String()]++
		depths[t.Priority.String()]++
	}
	for _, p := range []task.Priority{task.PriorityUrgent, task.PriorityHigh, task.PriorityNormal, task.PriorityLow} {
		metrics.UpdateQueueDepth(p.String(), counts[p.String()])
	}
	if q.pub != nil {
		if err := q.pub.Publish(context.Background(), events.NewEvent(events.EventQueueDepth, events.QueueDepthData(depths))); err != nil {
			logger.Debug().Err(err).Msg("failed to publish queue depth event")
		}
	}
}

// ReleaseToPending atomically moves t's file from processing/ back to
// pending/, used on RETRYING re-enqueue and WAITING_UNBAN→PENDING promotion.
func (q *Queue) ReleaseToPending(t *task.Task) error {
	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("queue: marshal task %s: %w", t.ID, err)
	}
	if err := atomicWrite(q.pendingPath(t.ID), data); err != nil {
		return fmt.Errorf("queue: release %s: %w", t.ID, err)
	}
	if err := os.Remove(q.processingPath(t.ID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("queue: remove stale processing entry for %s: %w", t.ID, err)
	}
	return nil
}

// Finalize deletes t's file from processing/, used on COMPLETED/FAILED.
func (q *Queue) Finalize(taskID string) error {
	if err := os.Remove(q.processingPath(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("queue: finalize %s: %w", taskID, err)
	}
	return nil
}

// Park removes t's file from processing/ without placing it in pending/,
// used by WAITING_UNBAN and PAUSED outcomes: neither state is directly
// claimable (a WAITING_UNBAN task needs the RateLimitCoordinator's global
// readiness check, a PAUSED one needs an operator or recovery action), so
// Claim must never see their entries sitting in pending/ in the meantime —
// Claim's own readiness check only ever looks at next_allowed_at, not at the
// state field, and would happily dispatch either the instant next_allowed_at
// elapses if their file were left there. Whoever promotes the task back to
// PENDING (Coordinator.recoverTask, an operator resume) calls Enqueue once
// the Store record has actually been flipped to PENDING.
func (q *Queue) Park(taskID string) error {
	if err := os.Remove(q.processingPath(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("queue: park %s: %w", taskID, err)
	}
	return nil
}

// UpdateProcessing overwrites a task's processing/ entry in place, used when
// a worker needs to persist incremental state (e.g. a freshly extracted
// session_id) without releasing ownership.
func (q *Queue) UpdateProcessing(t *task.Task) error {
	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("queue: marshal task %s: %w", t.ID, err)
	}
	if err := atomicWrite(q.processingPath(t.ID), data); err != nil {
		return fmt.Errorf("queue: update processing %s: %w", t.ID, err)
	}
	return nil
}

// ListProcessing returns every task currently recorded as claimed. Used by
// the RecoveryLoop's orphan scan.
func (q *Queue) ListProcessing() ([]*task.Task, error) {
	return q.list(q.processingDir)
}

// ListPending returns every task currently waiting to be claimed.
func (q *Queue) ListPending() ([]*task.Task, error) {
	return q.list(q.pendingDir)
}

func (q *Queue) list(dir string) ([]*task.Task, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		t, err := task.FromJSON(data)
		if err != nil {
			logger.Warn().Str("file", e.Name()).Err(err).Msg("skipping unreadable queue entry")
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (q *Queue) listSorted(dir string) ([]*task.Task, error) {
	tasks, err := q.list(dir)
	if err != nil {
		return nil, err
	}
	task.ByDispatchOrder(tasks)
	return tasks, nil
}

// RemoveOrphan deletes a stale processing/ entry directly, bypassing the
// normal release path, for use when the owning task record has already been
// reset elsewhere (e.g. by the RecoveryLoop after restoring it to PENDING
// via the Store and re-enqueuing through Enqueue).
func (q *Queue) RemoveOrphan(taskID string) error {
	if err := os.Remove(q.processingPath(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("queue: remove orphan %s: %w", taskID, err)
	}
	return nil
}
