package session

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores and managers after Close.
var ErrClosed = errors.New("session store closed")

// Store persists sessions between events.
type Store interface {
	// Get returns the session of userID, or nil when there is none.
	Get(ctx context.Context, userID string) (*Session, error)

	// Save creates or replaces a session.
	Save(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, userID string) error

	// Expired lists users whose session was last updated before cutoff.
	// Stores that expire entries on their own may return nothing.
	Expired(ctx context.Context, cutoff time.Time) ([]string, error)

	// Len returns the number of stored sessions.
	Len(ctx context.Context) (int, error)

	// Close releases the store's resources.
	Close() error
}
