package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	tk := New("echo", "assistant -p 'hi'", PriorityHigh)
	assert.Equal(t, StatePending, tk.State)
	assert.Equal(t, PriorityHigh, tk.Priority)
	assert.Equal(t, 5, tk.MaxRetries)
	assert.Equal(t, "ask", tk.ConfirmationStrategy)
	assert.True(t, tk.CanRetry())
}

func TestSetSessionIDUpgradeOnly(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	uuidVal := "f47ac10b-58cc-4372-a567-0e02b2c3d479"

	tk.SetSessionID(uuidVal)
	got, ok := tk.SessionID()
	require.True(t, ok)
	assert.Equal(t, uuidVal, got)

	tk.SetSessionID("not-a-uuid")
	got, ok = tk.SessionID()
	require.True(t, ok)
	assert.Equal(t, uuidVal, got, "a UUID session id must never be overwritten by a non-UUID value")

	other := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	tk.SetSessionID(other)
	got, _ = tk.SessionID()
	assert.Equal(t, other, got, "a fresher UUID may replace a stored UUID")
}

func TestSetSessionIDFirstNonUUIDIsAccepted(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	tk.SetSessionID("legacy-session-42")
	got, ok := tk.SessionID()
	require.True(t, ok)
	assert.Equal(t, "legacy-session-42", got)
}

func TestCanRetry(t *testing.T) {
	tk := New("t", "c", PriorityNormal)
	tk.MaxRetries = 2
	tk.RetryCount = 2
	assert.False(t, tk.CanRetry())

	tk.RetryCount = 1
	assert.True(t, tk.CanRetry())

	tk.State = StateCompleted
	assert.False(t, tk.CanRetry())
}

func TestJSONRoundTrip(t *testing.T) {
	tk := New("t", "c", PriorityUrgent)
	tk.CheckpointData["session_id"] = "abc"

	data, err := tk.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, decoded.ID)
	assert.Equal(t, PriorityUrgent, decoded.Priority)
	assert.Equal(t, "abc", decoded.CheckpointData["session_id"])
}
