// Package task defines the Task record, its state machine, and backoff math
// shared by the Store, Queue, TaskEngine and Worker.
package task

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
)

// Priority controls dispatch order within the Queue. Lower values are
// dispatched first.
type Priority int

const (
	PriorityUrgent Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the priority as its lowercase name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the lowercase name form.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePriority parses a priority name, defaulting to NORMAL on no match
// rather than failing — a task with a garbled priority field should still
// be schedulable.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "urgent":
		return PriorityUrgent, nil
	case "high":
		return PriorityHigh, nil
	case "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityNormal, ErrInvalidTaskData
	}
}

// Type advises the Worker's timeout floor/ceiling selection and is passed
// through to the assistant's permission-tier argument verbatim.
type Type string

const (
	TypeLightweight   Type = "lightweight"
	TypeMediumContext Type = "medium_context"
	TypeHeavyContext  Type = "heavy_context"
)

// ErrorEntry is one append-only record in a Task's error_history.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// Task is the primary durable entity. Its JSON form is the canonical
// on-disk representation at tasks/<id>/task.json and in the Queue
// directories.
type Task struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command"`
	WorkingDir  string            `json:"working_dir,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`

	TaskType Type     `json:"task_type"`
	Priority Priority `json:"priority"`

	State State `json:"task_state"`

	AutoExecute          bool          `json:"auto_execute"`
	ConfirmationStrategy string        `json:"confirmation_strategy"`
	InteractionTimeout   time.Duration `json:"interaction_timeout"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`

	Tags            []string       `json:"tags,omitempty"`
	AssignedWorker  *string        `json:"assigned_worker,omitempty"`
	IdempotencyKeys []string       `json:"idempotency_keys,omitempty"`

	CheckpointData map[string]interface{} `json:"checkpoint_data,omitempty"`

	LastError    string       `json:"last_error,omitempty"`
	ErrorHistory []ErrorEntry `json:"error_history,omitempty"`
}

// New constructs a task in PENDING state with default retry policy and
// confirmation strategy "ask", matching original_source/models.py defaults.
func New(name, command string, priority Priority) *Task {
	return &Task{
		ID:                    "task_" + uuid.New().String(),
		Name:                  name,
		Command:               command,
		TaskType:              TypeLightweight,
		Priority:              priority,
		State:                 StatePending,
		ConfirmationStrategy:  "ask",
		InteractionTimeout:    300 * time.Second,
		MaxRetries:            5,
		CreatedAt:             time.Now().UTC(),
		Environment:           make(map[string]string),
		CheckpointData:        make(map[string]interface{}),
	}
}

// CanRetry reports whether the task may still be retried.
func (t *Task) CanRetry() bool {
	if t.RetryCount >= t.MaxRetries {
		return false
	}
	switch t.State {
	case StateCompleted, StateNeedsHumanReview:
		return false
	default:
		return true
	}
}

// ShouldAutoConfirm reports whether interaction prompts should be answered
// automatically rather than routed to a human.
func (t *Task) ShouldAutoConfirm() bool {
	return t.AutoExecute || t.ConfirmationStrategy == "auto_yes"
}

// AddError appends an entry to the error history and sets LastError.
func (t *Task) AddError(message, kind string) {
	t.LastError = message
	t.ErrorHistory = append(t.ErrorHistory, ErrorEntry{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Message:   message,
	})
}

// SessionID returns the checkpoint's session_id, if any.
func (t *Task) SessionID() (string, bool) {
	v, ok := t.CheckpointData["session_id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetSessionID enforces the UUID-upgrade-only invariant: once a UUID-formatted
// session_id is stored, it is never overwritten by a non-UUID value.
func (t *Task) SetSessionID(candidate string) {
	if candidate == "" {
		return
	}
	current, has := t.SessionID()
	if has && isUUIDFormat(current) && !isUUIDFormat(candidate) {
		return
	}
	if t.CheckpointData == nil {
		t.CheckpointData = make(map[string]interface{})
	}
	t.CheckpointData["session_id"] = candidate
}

func isUUIDFormat(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ToJSON serializes the task.
func (t *Task) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// FromJSON deserializes a task.
func FromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ToJSONFile writes the task to path as JSON.
func (t *Task) ToJSONFile(path string) error {
	data, err := t.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FromJSONFile reads a task from path.
func FromJSONFile(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromJSON(data)
}
