package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/maumercado/task-queue-go/internal/assistant"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/ratelimit"
	"github.com/maumercado/task-queue-go/internal/task"
)

// errOutputTooLarge signals that a run's accumulated output crossed
// assistant.max_output_size and was terminated early.
var errOutputTooLarge = errors.New("assistant: output exceeded configured max_output_size")

// errSessionLimitExceeded signals that a run's wall-clock duration crossed
// assistant.session_limit, the absolute cap on a single invocation
// regardless of how recently it last produced output.
var errSessionLimitExceeded = errors.New("assistant: session exceeded configured session_limit")

// assistantError carries the parsed ErrorInfo for a rate-limit or
// session-expiry signal detected mid-stream, so executeTask can route the
// task to WAITING_UNBAN with the right retry-after hint.
type assistantError struct {
	info assistant.ErrorInfo
	raw  string
}

func (e *assistantError) Error() string {
	if e.info.ErrorMessage != "" {
		return e.info.ErrorMessage
	}
	return e.info.ErrorType
}

// readPollInterval bounds how long a single Process.ReadChunk call blocks
// before giving executeTask a chance to recheck the cli_timeout deadline
// and context cancellation, mirroring the 1-second asyncio.wait_for poll in
// original_source/worker.py:_monitor_process.
const readPollInterval = time.Second

// executeTask drives one claimed task through a single assistant invocation
// and commits its resulting state transition. Grounded in
// original_source/worker.py's _run_claude_command / _monitor_process.
func (p *Pool) executeTask(ctx context.Context, t *task.Task) error {
	sm := task.NewStateMachine(t, p.policy)
	if err := sm.Claim(p.id); err != nil {
		return fmt.Errorf("claim %s: %w", t.ID, err)
	}
	if err := p.persist(ctx, t); err != nil {
		return fmt.Errorf("persist claimed task %s: %w", t.ID, err)
	}

	resumeContext := ""
	if t.RetryCount > 0 {
		var lastOutput string
		if snap, err := p.st.GetSnapshot(ctx, t.ID, "resume_patch"); err == nil {
			lastOutput = string(snap)
		}
		resumeContext = task.BuildResumeContext(t, lastOutput)
	}

	command := assistant.BuildCommand(p.cfg.Assistant.BinaryPath, t, resumeContext)

	proc, err := assistant.Start(ctx, assistant.StartConfig{
		Command:    command,
		WorkingDir: t.WorkingDir,
		Env:        t.Environment,
	})
	if err != nil {
		return p.outcomeRetry(ctx, sm, t, fmt.Sprintf("failed to spawn assistant: %v", err), "")
	}

	output, runErr := p.monitor(ctx, proc, t)
	sanitized := assistant.SanitizeOutput(output)
	resultText, completed := assistant.AnalyzeFinalResult(output)

	if runErr == nil && completed {
		return p.outcomeComplete(ctx, sm, t)
	}

	if runErr != nil {
		var aerr *assistantError
		if errors.As(runErr, &aerr) {
			// Rate-limit detection routes to WAITING_UNBAN and feeds the
			// global coordinator (spec §4.3, §4.6 "Recording"); session
			// expiry is a RETRYING trigger instead (spec §4.3) so the next
			// attempt resumes via the task's already-captured session_id.
			if aerr.info.IsRateLimited {
				if p.rlRec != nil {
					if info := ratelimit.FromOutput(aerr.raw, aerr.info, p.policy.DefaultUnbanWait); info != nil {
						p.rlRec.Record(ctx, t.ID, info)
					}
				}
				return p.outcomeWaitUnban(ctx, sm, t, aerr.info.RetryAfter, aerr.Error(), sanitized)
			}
			return p.outcomeRetry(ctx, sm, t, aerr.Error(), sanitized)
		}
		switch {
		case errors.Is(runErr, errOutputTooLarge):
			return p.outcomePause(ctx, sm, t, "assistant output exceeded max_output_size", sanitized)
		case errors.Is(runErr, errSessionLimitExceeded):
			return p.outcomeWaitUnban(ctx, sm, t, nil, "session limit", sanitized)
		case errors.Is(runErr, context.DeadlineExceeded):
			return p.outcomeRetry(ctx, sm, t, "assistant invocation exceeded cli_timeout", sanitized)
		case errors.Is(runErr, context.Canceled):
			return p.outcomeRetry(ctx, sm, t, "assistant invocation canceled", sanitized)
		default:
			return p.outcomeRetry(ctx, sm, t, runErr.Error(), sanitized)
		}
	}

	if resultText != "" && p.detector != nil {
		if needsInteraction, autoResponse := p.detector(resultText); needsInteraction {
			t.SetInteractionState(resultText, autoResponse)
			return p.outcomeRetry(ctx, sm, t, "assistant requested interaction: "+resultText, sanitized)
		}
	}

	if !t.CanRetry() {
		return p.outcomeNeedsHumanReview(ctx, sm, t, "assistant exited without completion marker and no retries remain")
	}
	return p.outcomeRetry(ctx, sm, t, "assistant exited without completion marker", sanitized)
}

// monitor streams proc's combined stdout/stderr until it exits, extracting
// session ids and error signatures from each chunk as they arrive. Returns
// the full accumulated (unsanitized) output and any error that interrupted
// the run — nil if the process simply exited.
func (p *Pool) monitor(ctx context.Context, proc *assistant.Process, t *task.Task) (string, error) {
	var deadline time.Time
	if p.cfg.Assistant.CLITimeout > 0 {
		deadline = time.Now().Add(p.cfg.Assistant.CLITimeout)
	}

	var sessionDeadline time.Time
	if p.cfg.Assistant.SessionLimit > 0 {
		sessionDeadline = time.Now().Add(p.cfg.Assistant.SessionLimit)
	}

	var output strings.Builder
	buf := make([]byte, 64*1024)

	for {
		now := time.Now()
		if !sessionDeadline.IsZero() && now.After(sessionDeadline) {
			_ = proc.Terminate(5 * time.Second)
			proc.Wait()
			return output.String(), errSessionLimitExceeded
		}
		if !deadline.IsZero() && now.After(deadline) {
			_ = proc.Terminate(5 * time.Second)
			proc.Wait()
			return output.String(), context.DeadlineExceeded
		}

		n, err := proc.ReadChunk(ctx, buf, readPollInterval)
		if n > 0 {
			chunk := string(buf[:n])
			output.WriteString(chunk)

			if !deadline.IsZero() {
				deadline = time.Now().Add(p.cfg.Assistant.CLITimeout)
			}

			if p.cfg.Assistant.MaxOutputSize > 0 && int64(output.Len()) > p.cfg.Assistant.MaxOutputSize {
				_ = proc.Terminate(5 * time.Second)
				proc.Wait()
				return output.String(), errOutputTooLarge
			}

			if sid, ok := assistant.ExtractSessionIDFromChunk(chunk); ok {
				t.SetSessionID(sid)
				if uerr := p.q.UpdateProcessing(t); uerr != nil {
					logger.Warn().Err(uerr).Str("task_id", t.ID).Msg("failed to persist extracted session id")
				}
			}

			if info := assistant.ParseError(chunk); info.IsRateLimited || info.IsSessionExpired {
				_ = proc.Terminate(5 * time.Second)
				proc.Wait()
				return output.String(), &assistantError{info: info, raw: chunk}
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, assistant.ErrReadTimeout):
			continue
		case errors.Is(err, io.EOF):
			rest, _ := proc.ReadAll()
			output.Write(rest)
			return p.finishMonitor(output.String(), proc)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			_ = proc.Terminate(5 * time.Second)
			proc.Wait()
			return output.String(), err
		default:
			return p.finishMonitor(output.String(), proc)
		}
	}
}

// finishMonitor waits for the process's exit code once its output stream
// has closed and classifies a non-zero exit that carries no completion
// marker as an error.
func (p *Pool) finishMonitor(output string, proc *assistant.Process) (string, error) {
	code, waitErr := proc.Wait()
	if waitErr != nil {
		return output, waitErr
	}
	if code != 0 {
		if info := assistant.ParseError(output); info.IsRateLimited || info.IsSessionExpired {
			return output, &assistantError{info: info, raw: output}
		}
		if task.ContainsCompletionMarker(output) {
			return output, nil
		}
		return output, fmt.Errorf("assistant exited with code %d", code)
	}
	return output, nil
}
