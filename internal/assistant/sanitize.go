package assistant

import "regexp"

// sensitivePatterns are masked out of output before it reaches the log file
// or any snapshot, matching original_source/config/config.py's
// sensitive_patterns list.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b1[3-9]\d{9}\b`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{48}`),
	regexp.MustCompile(`[A-Za-z0-9+/]{40}=?=?`),
}

// SanitizeOutput masks matches of the known sensitive patterns, keeping the
// last 4 characters of each match visible for debugging context.
func SanitizeOutput(text string) string {
	for _, p := range sensitivePatterns {
		text = p.ReplaceAllStringFunc(text, func(match string) string {
			if len(match) > 4 {
				return "***" + match[len(match)-4:]
			}
			return "***"
		})
	}
	return text
}
