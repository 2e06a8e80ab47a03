package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimTransition(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	sm := NewStateMachine(tk, nil)

	require.NoError(t, sm.Claim("worker-1"))
	assert.Equal(t, StateProcessing, tk.State)
	require.NotNil(t, tk.StartedAt)
	require.NotNil(t, tk.AssignedWorker)
	assert.Equal(t, "worker-1", *tk.AssignedWorker)
}

func TestRetryForcesFailedAtMaxRetries(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	tk.MaxRetries = 1
	sm := NewStateMachine(tk, nil)
	require.NoError(t, sm.Claim("w"))

	require.NoError(t, sm.Retry("boom"))
	assert.Equal(t, StateFailed, tk.State, "retry_count reaching max_retries forces FAILED")
	assert.Equal(t, 1, tk.RetryCount)
	assert.Nil(t, tk.AssignedWorker)
}

func TestRetryBackoffMonotonicity(t *testing.T) {
	policy := DefaultBackoffPolicy()

	var prev time.Duration
	for n := 1; n <= 5; n++ {
		d := policy.RetryBackoff(n)
		assert.GreaterOrEqual(t, d, prev, "backoff must be non-decreasing across consecutive failures")
		assert.LessOrEqual(t, d, policy.MaxDelay)
		prev = d
	}
}

func TestWaitUnbanUsesRetryAfterWhenPresent(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	sm := NewStateMachine(tk, nil)
	require.NoError(t, sm.Claim("w"))

	retryAfter := 2 * time.Second
	require.NoError(t, sm.WaitUnban(&retryAfter))
	assert.Equal(t, StateWaitingUnban, tk.State)
	require.NotNil(t, tk.NextAllowedAt)
	assert.WithinDuration(t, time.Now().UTC().Add(retryAfter), *tk.NextAllowedAt, time.Second)
	assert.Nil(t, tk.AssignedWorker)
}

func TestWaitUnbanFallsBackToSessionFormula(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	tk.RetryCount = 1
	sm := NewStateMachine(tk, nil)
	require.NoError(t, sm.Claim("w"))

	require.NoError(t, sm.WaitUnban(nil))
	require.NotNil(t, tk.NextAllowedAt)
	expected := DefaultBackoffPolicy().SessionWaitBackoff(1)
	assert.WithinDuration(t, time.Now().UTC().Add(expected), *tk.NextAllowedAt, time.Second)
}

func TestRequeueClearsAssignment(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	sm := NewStateMachine(tk, nil)
	require.NoError(t, sm.Claim("w"))
	retryAfter := time.Second
	require.NoError(t, sm.WaitUnban(&retryAfter))

	require.NoError(t, sm.Requeue())
	assert.Equal(t, StatePending, tk.State)
	assert.Nil(t, tk.AssignedWorker)
	assert.Nil(t, tk.NextAllowedAt)
}

func TestInvalidTransitionRejected(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	sm := NewStateMachine(tk, nil)
	assert.ErrorIs(t, sm.Complete(), ErrInvalidTransition, "cannot complete a task that was never claimed")
}
