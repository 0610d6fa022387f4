package downloader

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the downloader.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of download errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (never retried).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is an HTTP-level failure from a GDELT endpoint.
type APIError struct {
	URL        string
	StatusCode int
	Message    string

	// RetryAfter carries the server's Retry-After hint, when present.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("GDELT API error (status %d) for %s: %s (retry after %s)",
			e.StatusCode, e.URL, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("GDELT API error (status %d) for %s: %s", e.StatusCode, e.URL, e.Message)
}

// Class returns the error classification for retry decisions.
func (e *APIError) Class() ErrorClass {
	return classifyStatus(e.StatusCode)
}

// IsRateLimit reports whether err is (or wraps) a rate-limit APIError.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsAPIError reports whether err is (or wraps) an *APIError, returning it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// classifyError categorizes an arbitrary error for retry decisions.
func classifyError(err error) ErrorClass {
	if apiErr, ok := IsAPIError(err); ok {
		return apiErr.Class()
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error class is worth retrying.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
