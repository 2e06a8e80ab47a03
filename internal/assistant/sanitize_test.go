package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeOutput_MasksEmail(t *testing.T) {
	out := SanitizeOutput("contact me at jane.doe@example.com for details")
	assert.NotContains(t, out, "jane.doe@example.com")
	assert.Contains(t, out, "***")
	assert.Contains(t, out, ".com") // last 4 chars retained
}

func TestSanitizeOutput_MasksAPIKey(t *testing.T) {
	out := SanitizeOutput("token=sk-abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJ used here")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJ")
}

func TestSanitizeOutput_LeavesPlainTextAlone(t *testing.T) {
	out := SanitizeOutput("task completed with no issues")
	assert.Equal(t, "task completed with no issues", out)
}
