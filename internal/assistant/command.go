package assistant

import (
	"fmt"
	"strings"

	"github.com/maumercado/task-queue-go/internal/task"
)

// defaultAutoResponse is used when an interaction was detected but the
// InteractionDetector produced no usable response text, matching
// original_source/worker.py's Chinese-language fallback sentence asserting
// full autonomous authority.
const defaultAutoResponse = "I have full autonomous operating authority and require no human intervention. I will continue to complete all task operations autonomously."

// BuildQuery assembles the text sent to the assistant for a resumed task,
// folding in any pending interaction prompt/response ahead of the ordinary
// resume context. Mirrors original_source/worker.py:_build_resume_query.
func BuildQuery(t *task.Task, resumeContext string) string {
	needsInteraction, prompt, autoResponse := t.InteractionState()
	if !needsInteraction {
		return resumeContext
	}

	autoResponse = strings.TrimSpace(autoResponse)
	if autoResponse == "" {
		autoResponse = defaultAutoResponse
	}

	var segments []string
	if p := strings.TrimSpace(prompt); p != "" {
		segments = append(segments, p)
	}
	segments = append(segments, autoResponse)
	if rc := strings.TrimSpace(resumeContext); rc != "" {
		segments = append(segments, rc)
	}
	return strings.Join(segments, "\n\n")
}

// BuildCommand picks between a fresh invocation of t.Command and a
// session-resume invocation, matching
// original_source/worker.py:_run_claude_command's branch: a session resume
// is used only when both a stored session_id and resume context exist.
func BuildCommand(binaryPath string, t *task.Task, resumeContext string) string {
	sessionID, hasSession := t.SessionID()
	if hasSession && resumeContext != "" {
		query := BuildQuery(t, resumeContext)
		return fmt.Sprintf("%s -r %s %s", binaryPath, shellQuote(sessionID), shellQuote(query))
	}
	return t.Command
}

// shellQuote wraps s in single quotes for safe interpolation into a
// /bin/sh -c command line, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
