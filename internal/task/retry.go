package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CompletionMarker is the fixed token whose presence in a result string or
// the overall output authorizes a COMPLETED transition.
const CompletionMarker = "✅ TASK_COMPLETED"

// BuildResumeContext assembles the deterministic text block fed to the
// assistant when a worker begins a RETRYING task, per spec §4.3. lastOutput
// is the last ~500 lines of the previous run's output (may be empty).
func BuildResumeContext(t *Task, lastOutput string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== TASK RESUME CONTEXT ===\n")
	fmt.Fprintf(&b, "Task: %s\n", t.Name)
	fmt.Fprintf(&b, "Retry Count: %d\n", t.RetryCount)

	if needs, _ := t.CheckpointData["needs_interaction"].(bool); needs {
		prompt, _ := t.CheckpointData["interaction_prompt"].(string)
		autoResponse, _ := t.CheckpointData["auto_response"].(string)

		fmt.Fprintf(&b, "Previous interaction detected: %s\n", prompt)
		confirm := "continue"
		if t.ShouldAutoConfirm() {
			confirm = "yes"
		}
		fmt.Fprintf(&b, "Auto-responding with: %s\n", confirm)
		if autoResponse != "" {
			fmt.Fprintf(&b, "Auto-response content: %s\n", autoResponse)
		}
		b.WriteString("Please continue with the task after this response.\n")
	}

	if sid, ok := t.SessionID(); ok {
		fmt.Fprintf(&b, "Session ID: %s\n", sid)
	}

	if len(t.CheckpointData) > 0 {
		needsInteraction, _ := t.CheckpointData["needs_interaction"].(bool)
		if !needsInteraction {
			rest := make(map[string]interface{}, len(t.CheckpointData))
			for k, v := range t.CheckpointData {
				switch k {
				case "session_id", "needs_interaction", "interaction_prompt":
					continue
				}
				rest[k] = v
			}
			if len(rest) > 0 {
				data, _ := json.MarshalIndent(rest, "", "  ")
				b.WriteString("\n=== CHECKPOINT DATA ===\n")
				b.Write(data)
				b.WriteString("\n")
			}
		}
	}

	if lastOutput != "" {
		truncated := lastOutput
		const maxBytes = 50_000
		if len(truncated) > maxBytes {
			truncated = truncated[len(truncated)-maxBytes:]
		}
		b.WriteString("\n=== PREVIOUS OUTPUT (Last 500 lines) ===\n")
		b.WriteString(truncated)
		b.WriteString("\n=== END PREVIOUS OUTPUT ===\n\n")
	}

	b.WriteString("Continue from where we left off.\n\n")
	b.WriteString("=== COMPLETION REMINDER ===\n")
	b.WriteString("Do not repeat actions that already succeeded.\n")
	fmt.Fprintf(&b, "When the task is fully complete, end your final response with the exact line: %s\n", CompletionMarker)
	b.WriteString("Place the marker on its own line as the last content and do not add text after it.")

	return b.String()
}

// ContainsCompletionMarker reports whether text carries the completion
// marker as required by invariant 7 (every COMPLETED task's accumulated
// output contains the marker).
func ContainsCompletionMarker(text string) bool {
	return strings.Contains(text, CompletionMarker)
}
