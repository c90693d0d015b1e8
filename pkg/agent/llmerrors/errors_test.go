package llmerrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		errType   ErrorType
		retryable bool
	}{
		{"rate limit is retryable", ErrorTypeRateLimit, true},
		{"transient is retryable", ErrorTypeTransient, true},
		{"empty response is retryable", ErrorTypeEmptyResponse, true},
		{"auth is not retryable", ErrorTypeAuth, false},
		{"bad prompt is not retryable", ErrorTypeBadPrompt, false},
		{"unknown is retryable", ErrorTypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewError(tt.errType, "test")
			assert.Equal(t, tt.retryable, err.IsRetryable())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewErrorWithCause(ErrorTypeTransient, cause, "request failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transient")
	assert.Contains(t, err.Error(), "request failed")
}

func TestIsAndTypeOf(t *testing.T) {
	err := NewErrorWithStatus(ErrorTypeRateLimit, 429, "too many requests")
	wrapped := fmt.Errorf("calling model: %w", err)

	assert.True(t, Is(wrapped, ErrorTypeRateLimit))
	assert.False(t, Is(wrapped, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))

	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain error")))
	assert.False(t, Is(nil, ErrorTypeRateLimit))
}

func TestGetRetryConfig(t *testing.T) {
	err := NewError(ErrorTypeRateLimit, "limited")
	cfg := err.GetRetryConfig()
	assert.Equal(t, DefaultRateLimitRetries, cfg.MaxRetries)
	assert.True(t, cfg.Jitter)

	authCfg := NewError(ErrorTypeAuth, "bad key").GetRetryConfig()
	assert.Equal(t, 0, authCfg.MaxRetries)
}

func TestSanitizePrompt(t *testing.T) {
	short := "a short prompt"
	assert.Equal(t, short, SanitizePrompt(short, 100))

	long := strings.Repeat("x", 5000)
	sanitized := SanitizePrompt(long, 400)
	require.Less(t, len(sanitized), len(long))
	assert.Contains(t, sanitized, "5000 chars")
	assert.Contains(t, sanitized, "hash:")
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "rate_limit", ErrorTypeRateLimit.String())
	assert.Equal(t, "bad_prompt", ErrorTypeBadPrompt.String())
	assert.Equal(t, "invalid", ErrorType(99).String())
}
