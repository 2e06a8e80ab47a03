package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maumercado/task-queue-go/internal/task"
)

func TestExecutor_Execute_Success(t *testing.T) {
	e := NewExecutor()
	testTask := task.New("test", "echo hi", task.PriorityNormal)

	called := false
	err := e.Execute(context.Background(), testTask, func(ctx context.Context, tk *task.Task) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestExecutor_Execute_Error(t *testing.T) {
	e := NewExecutor()
	testTask := task.New("fail", "echo hi", task.PriorityNormal)
	expected := errors.New("boom")

	err := e.Execute(context.Background(), testTask, func(ctx context.Context, tk *task.Task) error {
		return expected
	})

	assert.Equal(t, expected, err)
}

func TestExecutor_Execute_TimeoutClassified(t *testing.T) {
	e := NewExecutor()
	testTask := task.New("slow", "echo hi", task.PriorityNormal)

	err := e.Execute(context.Background(), testTask, func(ctx context.Context, tk *task.Task) error {
		return context.DeadlineExceeded
	})

	assert.Equal(t, ErrTaskTimeout, err)
}

func TestExecutor_Execute_CanceledClassified(t *testing.T) {
	e := NewExecutor()
	testTask := task.New("slow", "echo hi", task.PriorityNormal)

	err := e.Execute(context.Background(), testTask, func(ctx context.Context, tk *task.Task) error {
		return context.Canceled
	})

	assert.Equal(t, ErrTaskCanceled, err)
}

func TestExecutor_Execute_RecoversPanic(t *testing.T) {
	e := NewExecutor()
	testTask := task.New("panic", "echo hi", task.PriorityNormal)

	err := e.Execute(context.Background(), testTask, func(ctx context.Context, tk *task.Task) error {
		panic("something went wrong")
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskPanicked)
	assert.Contains(t, err.Error(), "something went wrong")
}

func TestExecutor_Execute_ContextDeadline(t *testing.T) {
	e := NewExecutor()
	testTask := task.New("slow", "echo hi", task.PriorityNormal)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := e.Execute(ctx, testTask, func(ctx context.Context, tk *task.Task) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.Equal(t, ErrTaskTimeout, err)
}

func TestErrorDefinitions(t *testing.T) {
	assert.Equal(t, "task execution timed out", ErrTaskTimeout.Error())
	assert.Equal(t, "task execution canceled", ErrTaskCanceled.Error())
	assert.Equal(t, "task execution panicked", ErrTaskPanicked.Error())
}
