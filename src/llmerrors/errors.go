package llmerrors

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Provider error codes that identify permanent request failures regardless of
// HTTP status.
const (
	CodeContentFilter   = "content_filter"
	CodeContextLength   = "context_length_exceeded"
	CodeCircuitOpen     = "circuit_open"
	CodeRequestTooLarge = "request_too_large"
)

// CallError is a classified provider failure. StatusCode is the HTTP status
// of the upstream response, 0 for network-level failures.
type CallError struct {
	StatusCode int
	Code       string
	Message    string
	// Retryable marks errors that should be reattempted even when the
	// status code alone would not qualify (e.g. transport resets).
	Retryable bool
	// RetryAfter is the provider-supplied wait hint, 0 when absent.
	RetryAfter time.Duration
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider call failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider call failed: %s", e.Message)
}

// CircuitOpenError is the synthetic failure returned while a deployment's
// breaker is open. It is never produced by the provider itself.
type CircuitOpenError struct {
	Deployment string
	ResetIn    time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry in %s", e.Deployment, e.ResetIn.Round(time.Second))
}

// retryableStatuses are the transient provider statuses worth another attempt.
var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// retryAfterPattern matches wait hints Azure embeds in 429 message bodies,
// e.g. "Please retry after 17 seconds."
var retryAfterPattern = regexp.MustCompile(`(?i)retry.{0,20}?(\d+)\s*second`)

// New builds a classified CallError from an upstream status, code and message.
// The retry-after hint is recovered from the message when the provider put it
// there instead of a header.
func New(status int, code, message string) *CallError {
	e := &CallError{
		StatusCode: status,
		Code:       code,
		Message:    message,
		Retryable:  retryableStatuses[status],
	}
	switch code {
	case CodeContentFilter, CodeContextLength:
		e.Retryable = false
	}
	if e.StatusCode == 429 {
		if m := retryAfterPattern.FindStringSubmatch(message); m != nil {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return e
}

// Network wraps a transport-level failure as a retryable CallError.
func Network(err error) *CallError {
	return &CallError{Message: err.Error(), Retryable: true}
}

// IsRetryable reports whether err should be handed back to the retry loop.
// Circuit-open errors are excluded: the dispatcher decides what to do with
// those, not the retry strategy.
func IsRetryable(err error) bool {
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return false
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Retryable || retryableStatuses[ce.StatusCode]
	}
	return false
}

// IsThrottle reports whether err is a 429 quota rejection.
func IsThrottle(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.StatusCode == 429
}

// IsContextLength reports whether the request overflowed the model's context
// window.
func IsContextLength(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Code == CodeContextLength
}

// IsCircuitOpen reports whether err is the breaker's synthetic failure.
func IsCircuitOpen(err error) bool {
	var open *CircuitOpenError
	return errors.As(err, &open)
}

// RetryAfter returns the provider wait hint attached to err, 0 when none.
func RetryAfter(err error) time.Duration {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}
