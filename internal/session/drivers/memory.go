// Package drivers provides the session.Store implementations: in-process
// memory, Redis and SQLite.
package drivers

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/gradebot/internal/session"
)

// MemoryStore implements session.Store with an in-process map. Sessions
// are copied on the way in and out so callers never share a record.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*session.Session),
	}
}

// Get implements session.Store.
func (s *MemoryStore) Get(_ context.Context, userID string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, session.ErrClosed
	}
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

// Save implements session.Store.
func (s *MemoryStore) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return session.ErrClosed
	}
	s.sessions[sess.UserID] = sess.Clone()
	return nil
}

// Delete implements session.Store.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return session.ErrClosed
	}
	delete(s.sessions, userID)
	return nil
}

// Expired implements session.Store.
func (s *MemoryStore) Expired(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, session.ErrClosed
	}
	var ids []string
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Len implements session.Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// Close implements session.Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.sessions = make(map[string]*session.Session)
	return nil
}
