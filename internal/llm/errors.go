package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error is a classified provider failure. Status carries the HTTP status
// family when the provider reported one; 0 means a transport-level failure.
type Error struct {
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is transient: 5xx, rate limits,
// and network-level errors. 4xx (other than 429) is permanent.
func (e *Error) Retryable() bool {
	switch {
	case e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	case e.Status == 0:
		// Transport failure without an HTTP status: treat as transient
		// unless the context was cancelled.
		return !errors.Is(e.Cause, context.Canceled)
	default:
		return false
	}
}

// IsRetryable classifies any error the gateway can return.
func IsRetryable(err error) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}

func wrapProviderError(provider, model string, status int, err error) *Error {
	return &Error{
		Provider: provider,
		Model:    model,
		Status:   status,
		Message:  err.Error(),
		Cause:    err,
	}
}
