package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNetwork matches every FetchError: transport failures and non-2xx responses.
	ErrNetwork = errors.New("network error")

	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUpstream         = errors.New("upstream failure")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrCircuitOpen      = errors.New("circuit breaker open")

	// ErrParse wraps a 2xx response body that could not be decoded.
	ErrParse = errors.New("parse response")

	ErrUnknownLayer = errors.New("unknown map layer")
)

// FetchError is returned by every client call that failed at the transport level or
// received a non-2xx status. Clients never retry on their own unless configured to.
type FetchError struct {
	Provider   string
	Endpoint   string
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Provider, e.Endpoint, e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap lets errors.Is match both ErrNetwork and the specific cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetwork}
	}
	return []error{ErrNetwork, e.Err}
}

func statusError(provider, endpoint string, status int) *FetchError {
	fe := &FetchError{Provider: provider, Endpoint: endpoint, StatusCode: status}
	switch {
	case status == 401 || status == 403:
		fe.Message, fe.Err = "request rejected", ErrUnauthorized
	case status == 404:
		fe.Message, fe.Err = "resource not found", ErrNotFound
	case status == 429:
		fe.Message, fe.Err = "too many requests", ErrRateLimited
	case status >= 500:
		fe.Message, fe.Err = "provider unavailable", ErrUpstream
	default:
		fe.Message, fe.Err = "request failed", ErrUnexpectedStatus
	}
	return fe
}

// Retryable reports whether repeating the same call may succeed: rate limits, 5xx,
// timeouts and connection failures. The presentation layer uses it to offer a retry.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstream) {
		return true
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode == 0 {
		return !errors.Is(err, context.Canceled)
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ErrorCategory is a stable label for error classification in metrics and API responses.
type ErrorCategory string

const (
	ErrorCategoryTimeout      ErrorCategory = "timeout"
	ErrorCategoryNetwork      ErrorCategory = "network"
	ErrorCategoryUnauthorized ErrorCategory = "unauthorized"
	ErrorCategoryNotFound     ErrorCategory = "not_found"
	ErrorCategoryRateLimited  ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx  ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen  ErrorCategory = "circuit_open"
	ErrorCategoryParsing      ErrorCategory = "parsing"
	ErrorCategoryUnknown      ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryUnauthorized
	case errors.Is(err, ErrNotFound):
		return ErrorCategoryNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstream):
		return ErrorCategoryUpstream5xx
	case errors.Is(err, ErrParse):
		return ErrorCategoryParsing
	case errors.Is(err, ErrNetwork):
		return ErrorCategoryNetwork
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
