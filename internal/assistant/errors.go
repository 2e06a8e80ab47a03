// Package assistant wraps invocation of the external assistant CLI: building
// its command line, spawning and streaming its subprocess, and parsing its
// output for session ids, rate-limit/session-expiry signals, and final
// results. Grounded in original_source/worker.py and original_source/utils.py.
package assistant

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorInfo is the result of scanning a chunk of assistant output for known
// failure signatures. Mirrors original_source/utils.py:parse_claude_error.
type ErrorInfo struct {
	IsRateLimited   bool
	IsSessionExpired bool
	RetryAfter      *time.Duration
	ErrorType       string
	ErrorMessage    string
}

var (
	rateLimitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`rate limit.*?exceeded`),
		regexp.MustCompile(`quota.*?exceeded`),
		regexp.MustCompile(`too many requests`),
		regexp.MustCompile(`5-hour limit.*?reached`),
		regexp.MustCompile(`usage limit.*?reached`),
	}

	sessionExpiredPatterns = []*regexp.Regexp{
		regexp.MustCompile(`session.*?expired`),
		regexp.MustCompile(`authentication.*?failed`),
		regexp.MustCompile(`login.*?required`),
		regexp.MustCompile(`unauthorized`),
	}

	errorMessagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`error:\s*(.+)`),
		regexp.MustCompile(`failed:\s*(.+)`),
		regexp.MustCompile(`exception:\s*(.+)`),
	}

	retryAfterPattern = regexp.MustCompile(`retry.*?after.*?(\d+).*?(second|minute|hour)`)
)

// ParseError scans output for rate-limit, session-expiry, and generic error
// signatures. A single chunk may report both a rate-limit and an error
// message; session-expiry and rate-limit are checked independently since
// either (or neither) may be present in the same chunk.
func ParseError(output string) ErrorInfo {
	lower := strings.ToLower(output)
	var info ErrorInfo

	for _, p := range rateLimitPatterns {
		if p.MatchString(lower) {
			info.IsRateLimited = true
			info.ErrorType = "rate_limit"
			if m := retryAfterPattern.FindStringSubmatch(lower); m != nil {
				if value, err := strconv.Atoi(m[1]); err == nil {
					d := retryAfterDuration(value, m[2])
					info.RetryAfter = &d
				}
			}
			break
		}
	}

	for _, p := range sessionExpiredPatterns {
		if p.MatchString(lower) {
			info.IsSessionExpired = true
			info.ErrorType = "session_expired"
			break
		}
	}

	for _, p := range errorMessagePatterns {
		if m := p.FindStringSubmatch(lower); m != nil {
			info.ErrorMessage = strings.TrimSpace(m[1])
			if info.ErrorType == "" {
				info.ErrorType = "general"
			}
			break
		}
	}

	return info
}

func retryAfterDuration(value int, unit string) time.Duration {
	switch {
	case strings.HasPrefix(unit, "minute"):
		return time.Duration(value) * time.Minute
	case strings.HasPrefix(unit, "hour"):
		return time.Duration(value) * time.Hour
	default:
		return time.Duration(value) * time.Second
	}
}
