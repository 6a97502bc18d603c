package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates the backend has no record for the request.
	ErrNotFound = errors.New("not found")

	// ErrBadResponse indicates a 2xx response whose body could not be decoded.
	ErrBadResponse = errors.New("malformed backend response")
)

// StatusError is a non-2xx, non-404 response from the backend.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("backend %s %s: status %d", e.Method, e.Path, e.Status)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// TransportError wraps a failure to reach the backend at all.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("backend %s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err means the backend was unreachable or
// failed on its side.
func IsUpstream(err error) bool {
	if err == nil {
		return false
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return errors.Is(err, ErrBadResponse) || errors.Is(err, context.DeadlineExceeded)
}

// retryable decides whether an idempotent request should be retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return !errors.Is(transportErr.Err, context.Canceled) && !errors.Is(transportErr.Err, context.DeadlineExceeded)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return false
}
