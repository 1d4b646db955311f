package provider

import (
	"errors"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsift/secsift/src/llmerrors"
)

func TestClassify_APIError(t *testing.T) {
	err := classify(&openai.APIError{
		HTTPStatusCode: 429,
		Message:        "Rate limit reached. Please retry after 12 seconds.",
	})

	var ce *llmerrors.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 429, ce.StatusCode)
	assert.True(t, llmerrors.IsThrottle(err))
	assert.Equal(t, 12*time.Second, llmerrors.RetryAfter(err))
}

func TestClassify_ContextLengthCode(t *testing.T) {
	err := classify(&openai.APIError{
		HTTPStatusCode: 400,
		Code:           "context_length_exceeded",
		Message:        "maximum context length is 8192 tokens",
	})

	assert.True(t, llmerrors.IsContextLength(err))
	assert.False(t, llmerrors.IsRetryable(err))
}

func TestClassify_ContentFilterType(t *testing.T) {
	// Azure reports filtering via the error type, not the code field.
	err := classify(&openai.APIError{
		HTTPStatusCode: 400,
		Type:           "content_filter",
		Message:        "response was filtered",
	})

	var ce *llmerrors.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, llmerrors.CodeContentFilter, ce.Code)
	assert.False(t, llmerrors.IsRetryable(err))
}

func TestClassify_RequestError(t *testing.T) {
	err := classify(&openai.RequestError{
		HTTPStatusCode: 503,
		Err:            errors.New("upstream unavailable"),
	})

	var ce *llmerrors.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 503, ce.StatusCode)
	assert.True(t, llmerrors.IsRetryable(err))
}

func TestClassify_NetworkError(t *testing.T) {
	err := classify(errors.New("dial tcp: connection refused"))

	var ce *llmerrors.CallError
	require.ErrorAs(t, err, &ce)
	assert.Zero(t, ce.StatusCode)
	assert.True(t, llmerrors.IsRetryable(err))
}

func TestQuotaFromHeaders_OpenAIStyle(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-remaining-tokens", "84000")
	h.Set("x-ratelimit-remaining-requests", "58")
	h.Set("x-ratelimit-reset-tokens", "6m0s")
	h.Set("x-ratelimit-reset-requests", "1s")

	q := quotaFromHeaders(h)
	require.True(t, q.Present)
	assert.Equal(t, 84000, q.RemainingTokens)
	assert.Equal(t, 58, q.RemainingRequests)
	assert.Equal(t, 6*time.Minute, q.ResetTokens)
	assert.Equal(t, time.Second, q.ResetRequests)
}

func TestQuotaFromHeaders_AzureStyle(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-remaining-tokens", "1500")
	h.Set("retry-after", "17")

	q := quotaFromHeaders(h)
	require.True(t, q.Present)
	assert.Equal(t, 1500, q.RemainingTokens)
	assert.Equal(t, 17*time.Second, q.ResetRequests)
}

func TestQuotaFromHeaders_Absent(t *testing.T) {
	q := quotaFromHeaders(http.Header{})
	assert.False(t, q.Present)
}

func TestParseReset(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseReset("30"))
	assert.Equal(t, 90*time.Second, parseReset("1m30s"))
	assert.Zero(t, parseReset(""))
	assert.Zero(t, parseReset("soon"))
}
