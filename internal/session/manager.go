package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultIdleTimeout is how long a session survives without events.
	DefaultIdleTimeout = 10 * time.Minute

	releaseTimeout = 5 * time.Second
)

// userLock serializes the events of one user. refs counts holders and
// waiters so the entry can be dropped once nobody needs it.
type userLock struct {
	ch   chan struct{}
	refs int
}

// Manager hands out exclusive access to sessions.
type Manager struct {
	store  Store
	idle   time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*userLock
}

// NewManager creates a manager over store.
func NewManager(store Store, idle time.Duration, logger *slog.Logger) *Manager {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		idle:   idle,
		logger: logger.With(slog.String("component", "session.manager")),
		locks:  make(map[string]*userLock),
	}
}

// IdleTimeout returns the configured idle lifetime.
func (m *Manager) IdleTimeout() time.Duration {
	return m.idle
}

// Lease is exclusive access to one session. It must be released.
type Lease struct {
	Session *Session

	manager *Manager
	lock    *userLock
	once    sync.Once
	discard bool
}

// Acquire waits for the user's lock and loads the session, creating an
// idle one when none exists or the stored one outlived the idle timeout.
func (m *Manager) Acquire(ctx context.Context, userID string) (*Lease, error) {
	l := m.ref(userID)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(userID, l)
		return nil, fmt.Errorf("acquire session %s: %w", userID, ctx.Err())
	}

	sess, err := m.store.Get(ctx, userID)
	if err != nil {
		<-l.ch
		m.unref(userID, l)
		return nil, fmt.Errorf("load session %s: %w", userID, err)
	}
	if sess != nil && time.Since(sess.UpdatedAt) > m.idle {
		m.logger.DebugContext(ctx, "Discarding idle session",
			slog.String("user_id", userID),
			slog.Duration("idle", time.Since(sess.UpdatedAt)))
		sess = nil
	}
	if sess == nil {
		sess = New(userID)
	}

	return &Lease{Session: sess, manager: m, lock: l}, nil
}

// Discard makes Release delete the session instead of saving it.
func (l *Lease) Discard() {
	l.discard = true
}

// Release persists the session and frees the user's lock. It runs at most
// once and ignores cancellation of ctx so the write is not lost.
func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		m := l.manager
		userID := l.Session.UserID
		if l.discard {
			err = m.store.Delete(ctx, userID)
		} else {
			l.Session.UpdatedAt = time.Now()
			err = m.store.Save(ctx, l.Session)
		}
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to persist session",
				slog.String("user_id", userID),
				slog.Any("error", err))
			err = fmt.Errorf("persist session %s: %w", userID, err)
		}

		<-l.lock.ch
		m.unref(userID, l.lock)
	})
	return err
}

// CleanupExpired removes sessions idle longer than the idle timeout. Users
// with an event in flight are skipped until the next pass.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.idle)
	ids, err := m.store.Expired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		ok, err := m.reclaim(ctx, id, cutoff)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (m *Manager) reclaim(ctx context.Context, userID string, cutoff time.Time) (bool, error) {
	l := m.ref(userID)
	defer m.unref(userID, l)

	select {
	case l.ch <- struct{}{}:
	default:
		return false, nil
	}
	defer func() { <-l.ch }()

	sess, err := m.store.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load session %s: %w", userID, err)
	}
	if sess == nil || sess.UpdatedAt.After(cutoff) {
		return false, nil
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		return false, fmt.Errorf("delete session %s: %w", userID, err)
	}
	return true, nil
}

// Stats returns current session statistics.
func (m *Manager) Stats(ctx context.Context) map[string]int {
	m.mu.Lock()
	active := len(m.locks)
	m.mu.Unlock()

	total, err := m.store.Len(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to count sessions", slog.Any("error", err))
		total = -1
	}

	return map[string]int{
		"total":  total,
		"active": active,
	}
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) ref(userID string) *userLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[userID]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		m.locks[userID] = l
	}
	l.refs++
	return l
}

func (m *Manager) unref(userID string, l *userLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs <= 0 && m.locks[userID] == l {
		delete(m.locks, userID)
	}
}
