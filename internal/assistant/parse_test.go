package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSessionIDFromLine(t *testing.T) {
	sid, ok := ExtractSessionIDFromLine(`{"type":"system","session_id":"a1b2c3"}`)
	require.True(t, ok)
	assert.Equal(t, "a1b2c3", sid)
}

func TestExtractSessionIDFromLine_NoMatch(t *testing.T) {
	_, ok := ExtractSessionIDFromLine(`plain output with no json`)
	assert.False(t, ok)
}

func TestExtractSessionIDFromChunk_MultiLineJSON(t *testing.T) {
	chunk := "some preamble\n{\n  \"type\": \"system\",\n  \"session_id\": \"deadbeef\"\n}\nmore text"
	sid, ok := ExtractSessionIDFromChunk(chunk)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", sid)
}

func TestExtractSessionIDFromChunk_ArrayForm(t *testing.T) {
	chunk := `[{"type":"system","session_id":"arr-session"}]`
	sid, ok := ExtractSessionIDFromChunk(chunk)
	require.True(t, ok)
	assert.Equal(t, "arr-session", sid)
}

func TestExtractResult_SingleObject(t *testing.T) {
	text, ok := ExtractResult(`{"type":"result","result":"the answer is 42"}`)
	require.True(t, ok)
	assert.Equal(t, "the answer is 42", text)
}

func TestExtractResult_NotAResultLine(t *testing.T) {
	_, ok := ExtractResult(`{"type":"system","session_id":"x"}`)
	assert.False(t, ok)
}

func TestAnalyzeFinalResult_CompletionMarkerInRawOutput(t *testing.T) {
	text, completed := AnalyzeFinalResult("some log lines\n✅ TASK_COMPLETED\n")
	assert.True(t, completed)
	assert.Empty(t, text)
}

func TestAnalyzeFinalResult_CompletionMarkerInResultField(t *testing.T) {
	out := `{"type":"result","result":"done here\n✅ TASK_COMPLETED"}`
	text, completed := AnalyzeFinalResult(out)
	assert.True(t, completed)
	assert.Empty(t, text)
}

func TestAnalyzeFinalResult_NoMarkerMeansIncomplete(t *testing.T) {
	out := `{"type":"result","result":"I finished part of the work"}`
	text, completed := AnalyzeFinalResult(out)
	assert.False(t, completed)
	assert.Equal(t, "I finished part of the work", text)
}
