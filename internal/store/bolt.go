package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/task"
)

var (
	bucketTasks       = []byte("tasks")
	bucketTasksByState = []byte("tasks_by_state")
	bucketIdempotency = []byte("idempotency")
	bucketWorkers     = []byte("workers")
	bucketAlerts      = []byte("alerts")
	bucketSnapshots   = []byte("snapshots")
)

// BoltStore is a bbolt-backed Store. bbolt's single-writer-transaction model
// gives the crash-atomic, serialized-writer semantics spec §4.1 requires
// without an external database process.
type BoltStore struct {
	db *bbolt.DB
}

// Open opens (creating if absent) a BoltStore at path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketTasks, bucketTasksByState, bucketIdempotency, bucketWorkers, bucketAlerts, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func stateIndexKey(state task.State, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s|%020d|%s", state, createdAt.UnixNano(), id))
}

// SaveTask upserts a task and refreshes its state index entry.
func (s *BoltStore) SaveTask(_ context.Context, t *task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		index := tx.Bucket(bucketTasksByState)

		if existing := tasks.Get([]byte(t.ID)); existing != nil {
			var prev task.Task
			if err := json.Unmarshal(existing, &prev); err == nil {
				_ = index.Delete(stateIndexKey(prev.State, prev.CreatedAt, prev.ID))
			}
		}

		if err := tasks.Put([]byte(t.ID), data); err != nil {
			return err
		}
		return index.Put(stateIndexKey(t.State, t.CreatedAt, t.ID), []byte(t.ID))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *BoltStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	var t *task.Task
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var decoded task.Task
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		t = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTasksByState returns every task currently in one of states, in no
// particular order.
func (s *BoltStore) GetTasksByState(_ context.Context, states ...task.State) ([]*task.Task, error) {
	wanted := make(map[task.State]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}

	var results []*task.Task
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(_, v []byte) error {
			var t task.Task
			if err := json.Unmarshal(v, &t); err != nil {
				return nil
			}
			if wanted[t.State] {
				results = append(results, &t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return results, nil
}

// GetPendingReady returns up to limit PENDING tasks whose next_allowed_at is
// absent or has elapsed, ordered by (priority, created_at). limit <= 0 means
// unbounded.
func (s *BoltStore) GetPendingReady(ctx context.Context, limit int) ([]*task.Task, error) {
	pending, err := s.GetTasksByState(ctx, task.StatePending)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ready := make([]*task.Task, 0, len(pending))
	for _, t := range pending {
		if t.NextAllowedAt != nil && t.NextAllowedAt.After(now) {
			continue
		}
		ready = append(ready, t)
	}

	task.ByDispatchOrder(ready)
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

func (s *BoltStore) DeleteTask(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		index := tx.Bucket(bucketTasksByState)

		existing := tasks.Get([]byte(id))
		if existing == nil {
			return nil
		}
		var t task.Task
		if err := json.Unmarshal(existing, &t); err == nil {
			_ = index.Delete(stateIndexKey(t.State, t.CreatedAt, t.ID))
		}
		return tasks.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *BoltStore) MarkIdempotent(_ context.Context, key, taskID, result string) error {
	rec := IdempotencyRecord{Key: key, TaskID: taskID, ExecutedAt: time.Now().UTC(), Result: result}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIdempotency)
		if b.Get([]byte(key)) != nil {
			return ErrAlreadyIdempotent
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		if err == ErrAlreadyIdempotent {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *BoltStore) CheckIdempotent(_ context.Context, key string) (*IdempotencyRecord, error) {
	var rec *IdempotencyRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketIdempotency).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		var decoded IdempotencyRecord
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		rec = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) SaveWorkerStatus(_ context.Context, w *WorkerStatus) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWorkers).Put([]byte(w.WorkerID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *BoltStore) GetWorkerStatus(_ context.Context, workerID string) (*WorkerStatus, error) {
	var w *WorkerStatus
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketWorkers).Get([]byte(workerID))
		if data == nil {
			return ErrNotFound
		}
		var decoded WorkerStatus
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		w = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetActiveWorkers returns workers whose last heartbeat is within maxAge.
func (s *BoltStore) GetActiveWorkers(_ context.Context, maxAge time.Duration) ([]*WorkerStatus, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	var active []*WorkerStatus

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWorkers).ForEach(func(_, v []byte) error {
			var w WorkerStatus
			if err := json.Unmarshal(v, &w); err != nil {
				return nil
			}
			if w.LastHeartbeat.After(cutoff) {
				active = append(active, &w)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return active, nil
}

func (s *BoltStore) SaveSnapshot(_ context.Context, taskID, snapshotID string, data []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put(snapshotKey(taskID, snapshotID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *BoltStore) GetSnapshot(_ context.Context, taskID, snapshotID string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get(snapshotKey(taskID, snapshotID))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func snapshotKey(taskID, snapshotID string) []byte {
	return []byte(taskID + "/" + snapshotID)
}

func (s *BoltStore) SaveAlert(_ context.Context, a *Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAlerts).Put([]byte(a.ID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	logger.Warn().Str("alert_id", a.ID).Str("level", string(a.Level)).Str("title", a.Title).Msg(a.Message)
	return nil
}

func (s *BoltStore) GetUnresolvedAlerts(_ context.Context) ([]*Alert, error) {
	var alerts []*Alert
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAlerts).ForEach(func(_, v []byte) error {
			var a Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return nil
			}
			if a.ResolvedAt == nil {
				alerts = append(alerts, &a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return alerts, nil
}

func (s *BoltStore) ResolveAlert(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAlerts)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var a Alert
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		now := time.Now().UTC()
		a.ResolvedAt = &now
		updated, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// Cleanup purges COMPLETED/FAILED tasks and their snapshots, plus resolved
// alerts, older than retention.
func (s *BoltStore) Cleanup(_ context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)

	return s.db.Update(func(tx *bbolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		index := tx.Bucket(bucketTasksByState)
		snapshots := tx.Bucket(bucketSnapshots)
		alerts := tx.Bucket(bucketAlerts)

		var toDelete []string
		if err := tasks.ForEach(func(k, v []byte) error {
			var t task.Task
			if err := json.Unmarshal(v, &t); err != nil {
				return nil
			}
			if t.State != task.StateCompleted && t.State != task.StateFailed {
				return nil
			}
			ts := t.CompletedAt
			if ts == nil {
				ts = &t.CreatedAt
			}
			if ts.Before(cutoff) {
				toDelete = append(toDelete, t.ID)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, id := range toDelete {
			data := tasks.Get([]byte(id))
			if data != nil {
				var t task.Task
				if err := json.Unmarshal(data, &t); err == nil {
					_ = index.Delete(stateIndexKey(t.State, t.CreatedAt, t.ID))
				}
			}
			if err := tasks.Delete([]byte(id)); err != nil {
				return err
			}
			prefix := []byte(id + "/")
			c := snapshots.Cursor()
			for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
				if err := snapshots.Delete(k); err != nil {
					return err
				}
			}
		}

		var resolvedToDelete [][]byte
		if err := alerts.ForEach(func(k, v []byte) error {
			var a Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return nil
			}
			if a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
				resolvedToDelete = append(resolvedToDelete, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range resolvedToDelete {
			if err := alerts.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
