package queue

import (
	"errors"
	"fmt"
)

// Common queue errors.
var (
	// ErrQueueStopped indicates the manager is shutting down.
	ErrQueueStopped = errors.New("queue stopped")

	// ErrQueueFull indicates the user already has too many pending jobs.
	ErrQueueFull = errors.New("user queue full")

	// ErrNilJob is returned for nil jobs.
	ErrNilJob = errors.New("nil job")

	// ErrInvalidTransition indicates a job state change that is not allowed.
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrNotInFlight indicates a job was completed that no worker owned.
	ErrNotInFlight = errors.New("job not in flight")
)

// PanicError records a panic recovered while handling a job.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// IsPanic reports whether err came from a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
