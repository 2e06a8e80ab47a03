package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/task"
)

// DLQEntry is a failed task retained for operator inspection or replay.
type DLQEntry struct {
	Task      *task.Task `json:"task"`
	Reason    string     `json:"reason"`
	AddedAt   time.Time  `json:"added_at"`
	OrigError string     `json:"original_error"`
}

// DLQ is a directory of dead-letter entries, one file per task, sitting
// alongside the pending/processing queue directories.
type DLQ struct {
	dir string
}

// NewDLQ opens (creating if absent) a DLQ rooted at baseDir/dlq.
func NewDLQ(baseDir string) (*DLQ, error) {
	dir := filepath.Join(baseDir, "dlq")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dlq: create %s: %w", dir, err)
	}
	return &DLQ{dir: dir}, nil
}

func (d *DLQ) path(taskID string) string { return filepath.Join(d.dir, taskID+".json") }

// Add records t as dead-lettered. The caller is responsible for having
// already transitioned t to FAILED via the TaskEngine.
func (d *DLQ) Add(t *task.Task, reason string) error {
	entry := DLQEntry{
		Task:      t,
		Reason:    reason,
		AddedAt:   time.Now().UTC(),
		OrigError: t.LastError,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("dlq: marshal %s: %w", t.ID, err)
	}
	if err := atomicWrite(d.path(t.ID), data); err != nil {
		return fmt.Errorf("dlq: add %s: %w", t.ID, err)
	}
	metrics.IncrementDLQAdded()
	d.refreshSizeMetric()
	return nil
}

// Get returns the dead-letter entry for taskID.
func (d *DLQ) Get(taskID string) (*DLQEntry, error) {
	data, err := os.ReadFile(d.path(taskID))
	if err != nil {
		return nil, err
	}
	var entry DLQEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns every dead-lettered entry, most recently added first.
func (d *DLQ) List() ([]*DLQEntry, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}

	result := make([]*DLQEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, e.Name()))
		if err != nil {
			continue
		}
		var entry DLQEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		result = append(result, &entry)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].AddedAt.After(result[j].AddedAt) })
	return result, nil
}

// Remove deletes a dead-letter entry.
func (d *DLQ) Remove(taskID string) error {
	if err := os.Remove(d.path(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dlq: remove %s: %w", taskID, err)
	}
	d.refreshSizeMetric()
	return nil
}

// Retry moves taskID from the DLQ back into q's pending directory, resetting
// it for another attempt.
func (d *DLQ) Retry(q *Queue, taskID string) error {
	entry, err := d.Get(taskID)
	if err != nil {
		return task.ErrTaskNotFound
	}

	sm := task.NewStateMachine(entry.Task, nil)
	if err := sm.Requeue(); err != nil {
		return fmt.Errorf("dlq: requeue %s: %w", taskID, err)
	}
	entry.Task.RetryCount = 0

	if err := q.Enqueue(entry.Task); err != nil {
		return err
	}
	return d.Remove(taskID)
}

// Size returns the number of dead-lettered entries.
func (d *DLQ) Size() (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			count++
		}
	}
	return count, nil
}

// refreshSizeMetric re-samples Size into the DLQSize gauge. Best-effort: a
// stat failure here shouldn't fail the Add/Remove it's attached to.
func (d *DLQ) refreshSizeMetric() {
	if size, err := d.Size(); err == nil {
		metrics.SetDLQSize(float64(size))
	}
}
