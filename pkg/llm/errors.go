package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies a provider failure. rate_limited and
// upstream_unavailable are retryable; invalid_input and auth are fatal to the
// agent invocation.
type ErrorKind string

const (
	ErrRateLimited         ErrorKind = "rate_limited"
	ErrUpstreamUnavailable ErrorKind = "upstream_unavailable"
	ErrInvalidInput        ErrorKind = "invalid_input"
	ErrAuth                ErrorKind = "auth"
)

// ProviderError is a classified failure from the completion provider.
// RetryAfter is populated from the Retry-After response header when present.
type ProviderError struct {
	Kind       ErrorKind
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s (http %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the error kind permits another attempt.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrUpstreamUnavailable
}

// IsRetryable reports whether err wraps a retryable *ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}

// classifyStatus maps an HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status >= 500:
		return ErrUpstreamUnavailable
	default:
		return ErrInvalidInput
	}
}

// statusOf extracts the HTTP status from a *ProviderError, or 0.
func statusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}

// retryAfterOf extracts the server-requested delay from a *ProviderError, or 0.
func retryAfterOf(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// parseRetryAfter parses a Retry-After header value: either delta-seconds or
// an HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
