package task

import (
	"errors"
	"math"
	"time"
)

// State is one of the nine task lifecycle states.
type State string

const (
	StatePending              State = "pending"
	StateProcessing           State = "processing"
	StatePaused               State = "paused"
	StateWaitingUnban         State = "waiting_unban"
	StateRetrying             State = "retrying"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
	StateNeedsHumanReview     State = "needs_human_review"
	// StateAwaitingConfirmation is part of the task_state enum but, per
	// spec, reached by no transition the worker performs — interaction
	// prompts route straight to RETRYING instead. Kept for forward
	// compatibility with a future manual-confirmation workflow.
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

func (s State) IsFinal() bool {
	switch s {
	case StateCompleted, StateFailed, StateNeedsHumanReview:
		return true
	default:
		return false
	}
}

func (s State) IsActive() bool {
	return s == StateProcessing
}

var (
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrInvalidTaskData   = errors.New("invalid task data")
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskAlreadyExists = errors.New("task already exists")
)

// ValidTransitions enumerates the edges of the state diagram in spec §4.3.
var ValidTransitions = map[State][]State{
	StatePending: {StateProcessing},
	StateProcessing: {
		StateCompleted,
		StateWaitingUnban,
		StateRetrying,
		StatePaused,
		StateNeedsHumanReview,
		StateAwaitingConfirmation,
		StateFailed,
	},
	StateWaitingUnban:         {StatePending},
	StateRetrying:             {StatePending, StateFailed},
	StatePaused:               {StatePending},
	StateAwaitingConfirmation: {StatePending},
	StateCompleted:            {},
	// FAILED -> PENDING is not an automatic transition: it's the edge
	// DLQ.Retry (and Client.ResumeTask's DLQ-adjacent sibling) uses to put a
	// dead-lettered task back to work on explicit operator request, mirroring
	// the teacher's StateDeadLetter -> StatePending "can be re-queued" edge.
	StateFailed:           {StatePending},
	StateNeedsHumanReview: {},
}

// CanTransitionTo reports whether target is a legal next state from s.
func (s State) CanTransitionTo(target State) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// BackoffPolicy holds the constants named in spec §6's configuration table.
type BackoffPolicy struct {
	BaseDelay                  time.Duration
	MaxDelay                   time.Duration
	ExponentialBase            float64
	DefaultUnbanWait           time.Duration
	RateLimitBackoffMultiplier float64
}

// DefaultBackoffPolicy matches the spec's documented defaults.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		BaseDelay:                  1 * time.Second,
		MaxDelay:                   300 * time.Second,
		ExponentialBase:            2.0,
		DefaultUnbanWait:           3600 * time.Second,
		RateLimitBackoffMultiplier: 1.5,
	}
}

// RetryBackoff computes the delay before a task that has just been
// transitioned to RETRYING may run again: base_delay * exponential_base^(n-1)
// capped at max_delay, where n is the retry_count after increment.
func (p *BackoffPolicy) RetryBackoff(retryCount int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(retryCount-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// SessionWaitBackoff computes the WAITING_UNBAN wait when no retry-after was
// parsed from the assistant's output: default_unban_wait *
// rate_limit_backoff_multiplier^retry_count, capped at max_delay.
func (p *BackoffPolicy) SessionWaitBackoff(retryCount int) time.Duration {
	d := float64(p.DefaultUnbanWait) * math.Pow(p.RateLimitBackoffMultiplier, float64(retryCount))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// StateMachine wraps a Task with the transition rules and side effects
// described in spec §4.3.
type StateMachine struct {
	task   *Task
	policy *BackoffPolicy
}

// NewStateMachine constructs a StateMachine over t using policy (or the
// default policy when nil).
func NewStateMachine(t *Task, policy *BackoffPolicy) *StateMachine {
	if policy == nil {
		policy = DefaultBackoffPolicy()
	}
	return &StateMachine{task: t, policy: policy}
}

// Transition performs a bare state change after validating legality. Callers
// needing the state-specific side effects (timestamps, backoff, retry
// counting) should use the named convenience methods below instead.
func (sm *StateMachine) Transition(target State) error {
	if !sm.task.State.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	sm.task.State = target
	return nil
}

// Claim transitions PENDING -> PROCESSING, recording the owning worker.
func (sm *StateMachine) Claim(workerID string) error {
	if err := sm.Transition(StateProcessing); err != nil {
		return err
	}
	now := time.Now().UTC()
	sm.task.StartedAt = &now
	sm.task.AssignedWorker = &workerID
	return nil
}

// Complete transitions PROCESSING -> COMPLETED.
func (sm *StateMachine) Complete() error {
	if err := sm.Transition(StateCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	sm.task.CompletedAt = &now
	sm.task.AssignedWorker = nil
	return nil
}

// Fail transitions any non-terminal state -> FAILED, recording errMsg.
func (sm *StateMachine) Fail(errMsg string) error {
	if err := sm.Transition(StateFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	sm.task.CompletedAt = &now
	sm.task.AssignedWorker = nil
	if errMsg != "" {
		sm.task.AddError(errMsg, string(StateFailed))
	}
	return nil
}

// Retry transitions PROCESSING -> RETRYING, incrementing retry_count after
// the transition and scheduling next_allowed_at with the retry backoff
// formula. If retry_count has reached max_retries, the terminal transition
// is FAILED instead, per spec §4.3.
func (sm *StateMachine) Retry(errMsg string) error {
	t := sm.task
	if errMsg != "" {
		t.AddError(errMsg, string(StateRetrying))
	}
	t.RetryCount++
	if t.RetryCount >= t.MaxRetries {
		t.State = StateFailed
		now := time.Now().UTC()
		t.CompletedAt = &now
		t.AssignedWorker = nil
		return nil
	}
	if err := sm.Transition(StateRetrying); err != nil {
		t.RetryCount--
		return err
	}
	delay := sm.policy.RetryBackoff(t.RetryCount)
	next := time.Now().UTC().Add(delay)
	t.NextAllowedAt = &next
	t.AssignedWorker = nil
	return nil
}

// WaitUnban transitions PROCESSING -> WAITING_UNBAN. retryAfter, if non-nil,
// is the parsed retry-after duration from the assistant's output; otherwise
// the session-wait backoff formula is used.
func (sm *StateMachine) WaitUnban(retryAfter *time.Duration) error {
	if err := sm.Transition(StateWaitingUnban); err != nil {
		return err
	}
	var wait time.Duration
	if retryAfter != nil {
		wait = *retryAfter
		// retry-after values are assistant-reported and may exceed the
		// configured ceiling; honored as-is, uncapped.
	} else {
		wait = sm.policy.SessionWaitBackoff(sm.task.RetryCount)
	}
	next := time.Now().UTC().Add(wait)
	sm.task.NextAllowedAt = &next
	sm.task.AssignedWorker = nil
	return nil
}

// Pause transitions PROCESSING -> PAUSED, used for output-size overflow and
// network-loss remediation.
func (sm *StateMachine) Pause(reason string) error {
	if err := sm.Transition(StatePaused); err != nil {
		return err
	}
	if reason != "" {
		sm.task.AddError(reason, string(StatePaused))
	}
	sm.task.AssignedWorker = nil
	return nil
}

// NeedsHumanReview transitions PROCESSING -> NEEDS_HUMAN_REVIEW, terminal
// for automated processing.
func (sm *StateMachine) NeedsHumanReview(reason string) error {
	if err := sm.Transition(StateNeedsHumanReview); err != nil {
		return err
	}
	now := time.Now().UTC()
	sm.task.CompletedAt = &now
	if reason != "" {
		sm.task.AddError(reason, string(StateNeedsHumanReview))
	}
	sm.task.AssignedWorker = nil
	return nil
}

// Requeue resets a task back to PENDING, clearing worker assignment and
// backoff, used by WAITING_UNBAN release and orphan recovery.
func (sm *StateMachine) Requeue() error {
	if err := sm.Transition(StatePending); err != nil {
		return err
	}
	sm.task.AssignedWorker = nil
	sm.task.NextAllowedAt = nil
	return nil
}
