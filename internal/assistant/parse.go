package assistant

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/maumercado/task-queue-go/internal/task"
)

// resultEnvelope matches the subset of the assistant's JSON event shape THE
// CORE cares about: {"type": "result", "result": "..."} and the
// streaming-session envelope {"session_id": "..."}.
type resultEnvelope struct {
	Type      string `json:"type"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

// ExtractSessionIDFromLine looks for a session_id in a single line of
// output, parsing it as a standalone JSON object. Returns ok=false if the
// line isn't JSON or carries no session_id.
func ExtractSessionIDFromLine(line string) (string, bool) {
	if !strings.Contains(line, `"session_id"`) {
		return "", false
	}
	var env resultEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return "", false
	}
	if env.SessionID == "" {
		return "", false
	}
	return env.SessionID, true
}

var sessionIDObjectPattern = regexp.MustCompile(`\{[^{}]*"session_id"[^{}]*\}`)

// ExtractSessionIDFromChunk scans a multi-line chunk for embedded JSON
// objects or arrays carrying a session_id, for output whose JSON spans more
// than one line of a streamed chunk.
func ExtractSessionIDFromChunk(chunk string) (string, bool) {
	for _, match := range sessionIDObjectPattern.FindAllString(chunk, -1) {
		var env resultEnvelope
		if err := json.Unmarshal([]byte(match), &env); err == nil && env.SessionID != "" {
			return env.SessionID, true
		}
	}

	if !strings.Contains(chunk, `"session_id"`) {
		return "", false
	}
	for _, line := range strings.Split(strings.TrimSpace(chunk), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "["):
			var envs []resultEnvelope
			if err := json.Unmarshal([]byte(line), &envs); err == nil {
				for _, env := range envs {
					if env.SessionID != "" {
						return env.SessionID, true
					}
				}
			}
		case strings.HasPrefix(line, "{"):
			var env resultEnvelope
			if err := json.Unmarshal([]byte(line), &env); err == nil && env.SessionID != "" {
				return env.SessionID, true
			}
		}
	}
	return "", false
}

// ExtractResult looks for a type=="result" event on a single line and
// returns its result text. Handles both a bare object and an array of
// events, matching the assistant CLI's occasional batching of events into a
// JSON array on one line.
func ExtractResult(line string) (string, bool) {
	if !strings.Contains(line, `"type":"result"`) && !strings.Contains(line, `"type": "result"`) {
		return "", false
	}

	var single resultEnvelope
	if err := json.Unmarshal([]byte(line), &single); err == nil {
		if single.Type == "result" && single.Result != "" {
			return single.Result, true
		}
	}

	var many []resultEnvelope
	if err := json.Unmarshal([]byte(line), &many); err == nil {
		for _, env := range many {
			if env.Type == "result" && env.Result != "" {
				return env.Result, true
			}
		}
	}

	return "", false
}

// AnalyzeFinalResult scans the complete captured output of a finished
// assistant invocation for the completion marker and, failing that, the
// last type=="result" event's text. Mirrors
// original_source/worker.py:_analyze_final_result, minus the AI interaction
// judgment call which the caller (the Worker, via InteractionDetector)
// performs separately on the returned result text.
func AnalyzeFinalResult(totalOutput string) (resultText string, completed bool) {
	if task.ContainsCompletionMarker(totalOutput) {
		return "", true
	}

	for _, line := range strings.Split(totalOutput, "\n") {
		if result, ok := ExtractResult(line); ok {
			if task.ContainsCompletionMarker(result) {
				return result, true
			}
			resultText = result
		}
	}
	return resultText, false
}
