package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/maumercado/task-queue-go/internal/assistant"
	"github.com/maumercado/task-queue-go/internal/logger"
)

// probeQuery is a minimal, quota-light invocation used only to test whether
// the assistant is responsive, never to make forward progress on a task.
const probeQuery = "respond with exactly: ok"

// Prober tests assistant availability without consuming a task's quota,
// generalizing original_source/rate_limit_manager.py's ClaudeProber. A
// gobreaker.CircuitBreaker wraps the underlying probe call so a persistently
// down assistant is not hammered with a fresh subprocess every cycle; this
// plays the same role the Python class's hand-rolled consecutive_failures
// counter did, with the trip/reset bookkeeping delegated to the library.
type Prober struct {
	binaryPath string
	interval   time.Duration // minimum gap between probes
	breaker    *gobreaker.CircuitBreaker

	mu              sync.Mutex
	lastProbeAt     time.Time
	consecutiveFail int
}

// NewProber constructs a Prober that shells out to binaryPath, probing no
// more often than interval.
func NewProber(binaryPath string, interval time.Duration) *Prober {
	p := &Prober{binaryPath: binaryPath, interval: interval}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "assistant-probe",
		MaxRequests: 1,
		Timeout:     interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("probe circuit breaker state changed")
		},
	})
	return p
}

// ConsecutiveFailures reports the probe's current failure streak.
func (p *Prober) ConsecutiveFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveFail
}

// Probe runs the probe command if the minimum interval has elapsed.
// Returns available=true when the assistant responded cleanly; info is
// non-nil only when the probe itself surfaced a further rate-limit signal.
func (p *Prober) Probe(ctx context.Context, defaultWait time.Duration) (available bool, info *Info) {
	p.mu.Lock()
	if !p.lastProbeAt.IsZero() && time.Since(p.lastProbeAt) < p.interval {
		p.mu.Unlock()
		return false, nil
	}
	p.lastProbeAt = time.Now().UTC()
	p.mu.Unlock()

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.runProbe(ctx)
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.consecutiveFail++
		if errors.Is(err, gobreaker.ErrOpenState) {
			logger.Debug().Msg("assistant probe skipped: circuit open")
		} else {
			logger.Warn().Err(err).Msg("assistant probe failed")
		}
		return false, nil
	}

	out := result.(string)
	errInfo := assistant.ParseError(out)
	if !errInfo.IsRateLimited && !errInfo.IsSessionExpired {
		p.consecutiveFail = 0
		return true, nil
	}

	p.consecutiveFail++
	return false, FromOutput(out, errInfo, defaultWait)
}

func (p *Prober) runProbe(ctx context.Context) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	command := fmt.Sprintf("%s %s", p.binaryPath, shellQuote(probeQuery))
	proc, err := assistant.Start(probeCtx, assistant.StartConfig{Command: command})
	if err != nil {
		return "", err
	}

	out := drainAll(probeCtx, proc)
	code, waitErr := proc.Wait()
	if waitErr != nil {
		return out, waitErr
	}
	if code != 0 {
		return out, fmt.Errorf("probe exited with code %d", code)
	}
	return out, nil
}

func drainAll(ctx context.Context, proc *assistant.Process) string {
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

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
