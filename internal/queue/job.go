// Package queue serializes inbound events per user. Each user has a FIFO of
// jobs; at most one job per user is in flight, and users are served
// round-robin by a fixed pool of workers.
package queue

import (
	"sync"
	"time"

	"github.com/Veraticus/gradebot/internal/dialogue"
)

// State is the lifecycle state of a job.
type State string

const (
	// StateQueued indicates the job is waiting in its user's queue.
	StateQueued State = "queued"

	// StateProcessing indicates a worker is handling the job.
	StateProcessing State = "processing"

	// StateCompleted indicates the handler returned without error.
	StateCompleted State = "completed"

	// StateFailed indicates the handler returned an error or panicked.
	StateFailed State = "failed"

	// StateDropped indicates the job was never handled, because the
	// user's queue was full or the manager shut down.
	StateDropped State = "dropped"
)

// Job wraps one inbound event on its way to the dialogue engine.
type Job struct {
	ID         string
	UserID     string
	Event      dialogue.Event
	EnqueuedAt time.Time

	mu          sync.RWMutex
	state       State
	err         error
	startedAt   time.Time
	completedAt time.Time
}

// NewJob creates a queued job for ev. The job id is the update id.
func NewJob(ev dialogue.Event) *Job {
	return &Job{
		ID:         ev.UpdateID,
		UserID:     ev.UserID,
		Event:      ev,
		EnqueuedAt: time.Now(),
		state:      StateQueued,
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Err returns the error the job failed with, if any.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Wait returns how long the job sat in the queue before a worker took it.
func (j *Job) Wait() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.startedAt.IsZero() {
		return time.Since(j.EnqueuedAt)
	}
	return j.startedAt.Sub(j.EnqueuedAt)
}

// Duration returns how long the handler ran. It is zero until the job ends.
func (j *Job) Duration() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.completedAt.IsZero() || j.startedAt.IsZero() {
		return 0
	}
	return j.completedAt.Sub(j.startedAt)
}

func (j *Job) setState(to State, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	switch to {
	case StateProcessing:
		j.startedAt = now
	case StateCompleted, StateFailed, StateDropped:
		j.completedAt = now
	}
	j.state = to
	if err != nil {
		j.err = err
	}
}
