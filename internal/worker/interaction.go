package worker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/maumercado/task-queue-go/internal/assistant"
	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/logger"
)

// interactionJudgmentTimeout bounds the side-channel judgment call so a
// confused assistant can never hold up a worker slot indefinitely, matching
// original_source/worker.py:_ai_detect_interaction_need_sync's 15-second
// budget.
const interactionJudgmentTimeout = 15 * time.Second

// genericResponseMarkers flags an auto-response that merely asserts
// autonomy without answering the actual question, which the original
// judgment prompt rejects as unusable.
var genericResponseMarkers = []string{
	"autonom",
	"best choice",
	"choose the best option",
	"make the best decision",
	"you can decide",
}

const judgmentPromptTemplate = `Read the assistant output below. Decide whether it is asking the operator a
question that blocks further progress, or whether work can continue
unattended.

Respond with exactly two lines and nothing else:
JUDGMENT: yes|no
RESPONSE: a single concrete, actionable answer to the question (empty if JUDGMENT is no)

--- OUTPUT ---
%s
--- END OUTPUT ---
`

var (
	judgmentLinePattern = regexp.MustCompile(`(?im)^JUDGMENT:\s*(yes|no)\s*$`)
	responseLinePattern = regexp.MustCompile(`(?im)^RESPONSE:\s*(.*)$`)
)

// NewAIInteractionDetector returns an InteractionDetector that shells out to
// the assistant binary a second time, asking it to judge whether resultText
// is a blocking question and, if so, propose a concrete answer. Grounded in
// original_source/worker.py:_ai_detect_interaction_need_sync.
func NewAIInteractionDetector(cfg *config.Config) InteractionDetector {
	return func(resultText string) (bool, string) {
		ctx, cancel := context.WithTimeout(context.Background(), interactionJudgmentTimeout)
		defer cancel()

		prompt := fmt.Sprintf(judgmentPromptTemplate, resultText)
		command := fmt.Sprintf("%s %s", cfg.Assistant.BinaryPath, shellQuote(prompt))

		proc, err := assistant.Start(ctx, assistant.StartConfig{Command: command})
		if err != nil {
			logger.Warn().Err(err).Msg("interaction judgment spawn failed")
			return false, ""
		}

		out := drainJudgment(ctx, proc)
		proc.Wait()

		judged := judgmentLinePattern.FindStringSubmatch(out)
		if judged == nil || strings.ToLower(judged[1]) != "yes" {
			return false, ""
		}

		response := ""
		if m := responseLinePattern.FindStringSubmatch(out); m != nil {
			response = strings.TrimSpace(m[1])
		}

		if response == "" {
			return false, ""
		}

		lower := strings.ToLower(response)
		for _, marker := range genericResponseMarkers {
			if strings.Contains(lower, marker) {
				return false, ""
			}
		}
		return true, response
	}
}

// drainJudgment reads the judgment subprocess's output until it closes or
// the bounding context expires, whichever comes first.
func drainJudgment(ctx context.Context, proc *assistant.Process) string {
	var sb strings.Builder
	buf := make([]byte, 8192)
	for {
		n, err := proc.ReadChunk(ctx, buf, 500*time.Millisecond)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err == nil || errors.Is(err, assistant.ErrReadTimeout) {
			continue
		}
		break
	}
	return sb.String()
}

// shellQuote wraps s in single quotes for safe interpolation into a
// /bin/sh -c command line, matching assistant.BuildCommand's quoting.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
