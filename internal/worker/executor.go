package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/task"
)

// RunFunc performs one task's assistant invocation and resulting state
// transition. Its error is used only for logging and duration
// classification; any state transition it causes has already been
// committed before it returns.
type RunFunc func(ctx context.Context, t *task.Task) error

// Executor wraps a RunFunc with panic recovery and timeout/cancellation
// classification. Adapted from the teacher's handler-registry Executor:
// THE CORE has exactly one execution path (the assistant subprocess), so
// the per-type handler map collapsed to a single RunFunc argument.
type Executor struct{}

// NewExecutor constructs an Executor.
func NewExecutor() *Executor { return &Executor{} }

// Execute runs fn, recovering from any panic and classifying context
// errors into ErrTaskTimeout / ErrTaskCanceled.
func (e *Executor) Execute(ctx context.Context, t *task.Task, fn RunFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error().
				Str("task_id", t.ID).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("task execution panicked")
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()

	log := logger.WithTask(t.ID)
	log.Debug().Int("attempt", t.RetryCount).Msg("executing task")

	start := time.Now()
	err = fn(ctx, t)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("duration", duration).Msg("task timed out")
			return ErrTaskTimeout
		}
		if errors.Is(err, context.Canceled) {
			log.Warn().Dur("duration", duration).Msg("task canceled")
			return ErrTaskCanceled
		}
		log.Error().Err(err).Dur("duration", duration).Msg("task failed")
		return err
	}

	log.Debug().Dur("duration", duration).Msg("task executed")
	return nil
}

// Error definitions
var (
	ErrTaskTimeout  = errors.New("task execution timed out")
	ErrTaskCanceled = errors.New("task execution canceled")
	ErrTaskPanicked = errors.New("task execution panicked")
)
