// Package store implements the durable single-writer transactional record
// store backing tasks, worker heartbeats, the idempotency ledger, recovery
// snapshots, and alerts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/maumercado/task-queue-go/internal/task"
)

// Errors surfaced by Store operations. Transient I/O failures should be
// wrapped in ErrUnavailable; on-disk corruption is fatal and wrapped in
// ErrCorrupt, per spec §4.1.
var (
	ErrUnavailable     = errors.New("store unavailable")
	ErrCorrupt         = errors.New("store corrupt")
	ErrAlreadyIdempotent = errors.New("idempotency key already recorded")
	ErrNotFound        = errors.New("record not found")
)

// AlertLevel is the severity of an Alert.
type AlertLevel string

const (
	AlertP1 AlertLevel = "P1" // business interruption
	AlertP2 AlertLevel = "P2" // recoverable failure
	AlertP3 AlertLevel = "P3" // minor issue
)

// Alert is a durable operator-facing notice.
type Alert struct {
	ID         string                 `json:"id"`
	Level      AlertLevel             `json:"level"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	TaskID     string                 `json:"task_id,omitempty"`
	WorkerID   string                 `json:"worker_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// WorkerState mirrors a Worker's process-level status, distinct from task
// state.
type WorkerState string

const (
	WorkerSpawning    WorkerState = "spawning"
	WorkerRunning     WorkerState = "running"
	WorkerPaused      WorkerState = "paused"
	WorkerHung        WorkerState = "hung"
	WorkerTerminating WorkerState = "terminating"
	WorkerKilled      WorkerState = "killed"
	WorkerRestarting  WorkerState = "restarting"
)

// WorkerStatus is the durable heartbeat row for one worker.
type WorkerStatus struct {
	WorkerID      string      `json:"worker_id"`
	PID           int         `json:"pid,omitempty"`
	State         WorkerState `json:"state"`
	CurrentTaskID string      `json:"current_task_id,omitempty"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	CPUPercent    float64     `json:"cpu_percent"`
	RSSBytes      int64       `json:"rss_bytes"`
	TasksCompleted int        `json:"tasks_completed"`
	TasksFailed    int        `json:"tasks_failed"`
}

// IdempotencyRecord is a write-once row in the idempotency ledger.
type IdempotencyRecord struct {
	Key        string    `json:"key"`
	TaskID     string    `json:"task_id"`
	ExecutedAt time.Time `json:"executed_at"`
	Result     string    `json:"result"`
}

// Store is the durable persistence surface described in spec §4.1.
type Store interface {
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	GetTasksByState(ctx context.Context, states ...task.State) ([]*task.Task, error)
	GetPendingReady(ctx context.Context, limit int) ([]*task.Task, error)
	DeleteTask(ctx context.Context, id string) error

	MarkIdempotent(ctx context.Context, key, taskID, result string) error
	CheckIdempotent(ctx context.Context, key string) (*IdempotencyRecord, error)

	SaveWorkerStatus(ctx context.Context, w *WorkerStatus) error
	GetActiveWorkers(ctx context.Context, maxAge time.Duration) ([]*WorkerStatus, error)
	GetWorkerStatus(ctx context.Context, workerID string) (*WorkerStatus, error)

	SaveSnapshot(ctx context.Context, taskID, snapshotID string, data []byte) error
	GetSnapshot(ctx context.Context, taskID, snapshotID string) ([]byte, error)

	SaveAlert(ctx context.Context, a *Alert) error
	GetUnresolvedAlerts(ctx context.Context) ([]*Alert, error)
	ResolveAlert(ctx context.Context, id string) error

	Cleanup(ctx context.Context, retention time.Duration) error
	Close() error
}
