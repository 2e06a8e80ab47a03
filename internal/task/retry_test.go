package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildResumeContextIncludesInteraction(t *testing.T) {
	tk := New("deploy", "assistant -p 'deploy'", PriorityNormal)
	tk.RetryCount = 1
	tk.CheckpointData["needs_interaction"] = true
	tk.CheckpointData["interaction_prompt"] = "Please confirm (y/n)"
	tk.CheckpointData["auto_response"] = "y"
	tk.SetSessionID("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	ctx := BuildResumeContext(tk, "line1\nline2\n")

	assert.Contains(t, ctx, "Please confirm (y/n)")
	assert.Contains(t, ctx, "Auto-response content: y")
	assert.Contains(t, ctx, "Session ID: f47ac10b-58cc-4372-a567-0e02b2c3d479")
	assert.Contains(t, ctx, "line1\nline2")
	assert.Contains(t, ctx, CompletionMarker)
}

func TestContainsCompletionMarker(t *testing.T) {
	assert.True(t, ContainsCompletionMarker("all done\n"+CompletionMarker))
	assert.False(t, ContainsCompletionMarker("still working"))
}
