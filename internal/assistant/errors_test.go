package assistant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseError_RateLimit(t *testing.T) {
	info := ParseError("Error: rate limit exceeded, please retry after 30 seconds")
	assert.True(t, info.IsRateLimited)
	assert.Equal(t, "rate_limit", info.ErrorType)
	if assert.NotNil(t, info.RetryAfter) {
		assert.Equal(t, 30*time.Second, *info.RetryAfter)
	}
}

func TestParseError_RetryAfterMinutes(t *testing.T) {
	info := ParseError("usage limit reached, retry after 2 minutes")
	assert.True(t, info.IsRateLimited)
	if assert.NotNil(t, info.RetryAfter) {
		assert.Equal(t, 2*time.Minute, *info.RetryAfter)
	}
}

func TestParseError_SessionExpired(t *testing.T) {
	info := ParseError("authentication failed: session expired, login required")
	assert.True(t, info.IsSessionExpired)
	assert.Equal(t, "session_expired", info.ErrorType)
	assert.False(t, info.IsRateLimited)
}

func TestParseError_GenericErrorMessage(t *testing.T) {
	info := ParseError("Error: something went wrong while writing the file")
	assert.False(t, info.IsRateLimited)
	assert.False(t, info.IsSessionExpired)
	assert.Equal(t, "general", info.ErrorType)
	assert.Equal(t, "something went wrong while writing the file", info.ErrorMessage)
}

func TestParseError_CleanOutputHasNoSignals(t *testing.T) {
	info := ParseError(`{"type":"result","result":"done"}`)
	assert.False(t, info.IsRateLimited)
	assert.False(t, info.IsSessionExpired)
	assert.Empty(t, info.ErrorType)
}
