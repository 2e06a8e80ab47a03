// Package ratelimit detects assistant rate-limit/session-expiry signals,
// classifies them, and runs the background loop that probes for recovery
// and releases WAITING_UNBAN tasks once both their own and a process-wide
// unban window have cleared. Grounded in
// original_source/rate_limit_manager.py.
package ratelimit

import (
	"strings"
	"time"

	"github.com/maumercado/task-queue-go/internal/assistant"
)

// LimitType classifies which kind of rate limit was detected, mirroring
// original_source/rate_limit_manager.py's RateLimitType enum.
type LimitType string

const (
	LimitSessionLimit  LimitType = "session_limit"  // 5-hour limit
	LimitRequestRate   LimitType = "request_rate"    // too many requests
	LimitQuotaExceeded LimitType = "quota_exceeded"  // daily/monthly quota
	LimitUnknown       LimitType = "unknown"
)

// Info is one detected rate-limit signal, either from a live task's output
// or from a probe.
type Info struct {
	LimitType  LimitType
	RetryAfter time.Duration
	DetectedAt time.Time
	RawMessage string
	Confidence float64
}

// classify derives a LimitType and a confidence score from raw output text,
// matching _parse_rate_limit_from_output's substring heuristics.
func classify(output string) (LimitType, float64) {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "5-hour") || strings.Contains(lower, "session limit"):
		return LimitSessionLimit, 0.95
	case strings.Contains(lower, "quota"):
		return LimitQuotaExceeded, 0.9
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return LimitRequestRate, 0.85
	default:
		return LimitUnknown, 0.5
	}
}

// estimatedRetryAfter is the per-type fallback duration used when the
// assistant's own output carried no explicit retry-after hint, matching
// _estimate_retry_after.
func estimatedRetryAfter(lt LimitType, fallback time.Duration) time.Duration {
	switch lt {
	case LimitSessionLimit:
		return 5 * time.Hour
	case LimitQuotaExceeded:
		return 24 * time.Hour
	case LimitRequestRate:
		return 1 * time.Hour
	default:
		return fallback
	}
}

// FromOutput builds an Info from a chunk of output already known (via
// assistant.ParseError) to carry a rate-limit or session-expiry signal.
// Returns nil if errInfo carries neither.
func FromOutput(output string, errInfo assistant.ErrorInfo, defaultWait time.Duration) *Info {
	if !errInfo.IsRateLimited && !errInfo.IsSessionExpired {
		return nil
	}

	lt, confidence := classify(output)

	retryAfter := defaultWait
	if errInfo.RetryAfter != nil {
		retryAfter = *errInfo.RetryAfter
	} else {
		retryAfter = estimatedRetryAfter(lt, defaultWait)
	}

	raw := output
	if len(raw) > 500 {
		raw = raw[:500]
	}

	return &Info{
		LimitType:  lt,
		RetryAfter: retryAfter,
		DetectedAt: time.Now().UTC(),
		RawMessage: raw,
		Confidence: confidence,
	}
}
