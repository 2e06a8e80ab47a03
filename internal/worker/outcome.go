package worker

import (
	"context"
	"strings"
	"time"

	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/task"
)

// taskDuration reports how long t spent between claim and completion, or
// zero if it was never actually started.
func taskDuration(t *task.Task) float64 {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt).Seconds()
}

// resumeSnapshotLines bounds how much of a run's output is retained as the
// next attempt's resume context, mirroring
// original_source/worker.py:_save_resume_patch's "last 500 lines".
const resumeSnapshotLines = 500

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// saveResumeSnapshot persists the tail of this attempt's output so the next
// attempt's BuildResumeContext call has something to resume from.
func (p *Pool) saveResumeSnapshot(ctx context.Context, t *task.Task, output string) {
	if output == "" {
		return
	}
	if err := p.st.SaveSnapshot(ctx, t.ID, "resume_patch", []byte(lastLines(output, resumeSnapshotLines))); err != nil {
		logger.Warn().Err(err).Str("task_id", t.ID).Msg("failed to save resume snapshot")
	}
}

// persist writes t's current state to the Store only, used mid-run when
// ownership of the queue entry is not changing (e.g. a freshly extracted
// session_id).
func (p *Pool) persist(ctx context.Context, t *task.Task) error {
	return p.st.SaveTask(ctx, t)
}

// release writes t to the Store and moves its queue entry back to pending/,
// used by every non-terminal outcome (RETRYING, WAITING_UNBAN, PAUSED,
// AWAITING_CONFIRMATION-with-auto-retry).
func (p *Pool) release(ctx context.Context, t *task.Task) error {
	if err := p.st.SaveTask(ctx, t); err != nil {
		return err
	}
	return p.q.ReleaseToPending(t)
}

// terminate writes t to the Store and removes its queue entry, used by
// every terminal outcome (COMPLETED, FAILED, NEEDS_HUMAN_REVIEW).
func (p *Pool) terminate(ctx context.Context, t *task.Task) error {
	if err := p.st.SaveTask(ctx, t); err != nil {
		return err
	}
	return p.q.Finalize(t.ID)
}

// park writes t to the Store and removes its queue entry from processing/
// without placing it in pending/, used by WAITING_UNBAN and PAUSED: neither
// is claimable on its own, so the file must stay out of both queue
// directories until whatever actually promotes the task back to PENDING
// (the RateLimitCoordinator, an operator resume) re-enqueues it.
func (p *Pool) park(ctx context.Context, t *task.Task) error {
	if err := p.st.SaveTask(ctx, t); err != nil {
		return err
	}
	return p.q.Park(t.ID)
}

// outcomeComplete finalizes a successful run.
func (p *Pool) outcomeComplete(ctx context.Context, sm *task.StateMachine, t *task.Task) error {
	if err := sm.Complete(); err != nil {
		return err
	}
	t.ClearInteractionState()
	p.recordCompletion(true)
	metrics.RecordTaskCompletion(string(t.TaskType), "completed", taskDuration(t))
	p.publish(ctx, events.NewEvent(events.EventTaskCompleted,
		events.TaskEventData(t.ID, string(t.TaskType), t.Priority.String(), map[string]interface{}{"worker_id": p.id})))
	return p.terminate(ctx, t)
}

// outcomeRetry transitions the task to RETRYING, or to the terminal FAILED
// state (and the DLQ) if max_retries has been exhausted.
func (p *Pool) outcomeRetry(ctx context.Context, sm *task.StateMachine, t *task.Task, reason, output string) error {
	if err := sm.Retry(reason); err != nil {
		return err
	}
	p.saveResumeSnapshot(ctx, t, output)

	if t.State == task.StateFailed {
		p.recordCompletion(false)
		metrics.RecordTaskCompletion(string(t.TaskType), "failed", taskDuration(t))
		if p.dlq != nil {
			if err := p.dlq.Add(t, reason); err != nil {
				logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to dead-letter task")
			}
		}
		p.publish(ctx, events.NewEvent(events.EventTaskFailed,
			events.TaskEventData(t.ID, string(t.TaskType), t.Priority.String(), map[string]interface{}{"worker_id": p.id, "reason": reason})))
		return p.terminate(ctx, t)
	}
	metrics.RecordTaskRetry(string(t.TaskType))
	p.publish(ctx, events.NewEvent(events.EventTaskRetrying,
		events.TaskEventData(t.ID, string(t.TaskType), t.Priority.String(), map[string]interface{}{"worker_id": p.id, "reason": reason, "attempt": t.RetryCount})))
	return p.release(ctx, t)
}

// outcomeWaitUnban transitions the task to WAITING_UNBAN.
func (p *Pool) outcomeWaitUnban(ctx context.Context, sm *task.StateMachine, t *task.Task, retryAfter *time.Duration, reason, output string) error {
	if err := sm.WaitUnban(retryAfter); err != nil {
		return err
	}
	if reason != "" {
		t.AddError(reason, string(task.StateWaitingUnban))
	}
	p.saveResumeSnapshot(ctx, t, output)
	return p.park(ctx, t)
}

// outcomePause transitions the task to PAUSED.
func (p *Pool) outcomePause(ctx context.Context, sm *task.StateMachine, t *task.Task, reason, output string) error {
	if err := sm.Pause(reason); err != nil {
		return err
	}
	p.saveResumeSnapshot(ctx, t, output)
	return p.park(ctx, t)
}

// outcomeNeedsHumanReview transitions the task to NEEDS_HUMAN_REVIEW and
// raises a P2 alert for operator attention.
func (p *Pool) outcomeNeedsHumanReview(ctx context.Context, sm *task.StateMachine, t *task.Task, reason string) error {
	if err := sm.NeedsHumanReview(reason); err != nil {
		return err
	}
	p.recordCompletion(false)
	metrics.RecordTaskCompletion(string(t.TaskType), "needs_human_review", taskDuration(t))
	return p.terminate(ctx, t)
}
