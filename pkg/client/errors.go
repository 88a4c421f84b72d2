package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the fetcher.
var (
	// ErrRetryExhausted is returned when all fetch attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled
	// during a pacing delay or slot acquisition.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassRateLimit represents HTTP 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors, including 503
	// server-busy responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport-level errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassClient represents non-retryable 4xx statuses.
	ErrorClassClient ErrorClass = "client"
)

// FetchError is the classified failure for one article identifier. It
// is the only signal the fetcher surfaces for "could not obtain this
// document" and is never fatal to a run.
type FetchError struct {
	ID         int
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("failed to fetch post %d: %s (status %d)", e.ID, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch post %d: %s", e.ID, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to an error class. 2xx statuses
// never reach this function.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// shouldRetry determines if an error class warrants another attempt.
// Client errors are terminal; retrying them only wastes the request
// budget.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassRateLimit, ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
