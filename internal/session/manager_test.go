package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Veraticus/gradebot/internal/session"
	"github.com/Veraticus/gradebot/internal/session/drivers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestManager_AcquireCreatesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := drivers.NewMemoryStore()
	m := session.NewManager(store, time.Minute, nil)

	lease, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, lease.Session.State)
	lease.Session.State = session.StateSelectingMode
	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx), "second release is a no-op")

	stored, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, session.StateSelectingMode, stored.State)

	lease, err = m.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StateSelectingMode, lease.Session.State)
	lease.Discard()
	require.NoError(t, lease.Release(ctx))

	stored, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManager_SerializesSameUser(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(drivers.NewMemoryStore(), time.Minute, nil)

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(ctx, "u1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			lease.Session.LastQuery += "x"
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, lease.Release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())

	lease, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, lease.Session.LastQuery, 20, "no update was lost")
	require.NoError(t, lease.Release(ctx))
	assert.Equal(t, 0, m.Stats(ctx)["active"])
}

func TestManager_DifferentUsersDoNotBlock(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(drivers.NewMemoryStore(), time.Minute, nil)

	held, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	other, err := m.Acquire(waitCtx, "u2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestManager_AcquireHonoursContext(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(drivers.NewMemoryStore(), time.Minute, nil)

	held, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(waitCtx, "u1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Release(ctx))
	assert.Equal(t, 0, m.Stats(ctx)["active"])
}

func TestManager_IdleSessionStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := drivers.NewMemoryStore()
	m := session.NewManager(store, time.Minute, nil)

	old := session.New("u1")
	old.State = session.StateShowingGrades
	old.UpdatedAt = time.Now().Add(-2 * time.Minute)
	require.NoError(t, store.Save(ctx, old))

	lease, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, lease.Session.State)
	require.NoError(t, lease.Release(ctx))
}

func TestManager_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := drivers.NewMemoryStore()
	m := session.NewManager(store, time.Minute, nil)

	for _, id := range []string{"old1", "old2", "busy"} {
		s := session.New(id)
		s.UpdatedAt = time.Now().Add(-time.Hour)
		require.NoError(t, store.Save(ctx, s))
	}
	require.NoError(t, store.Save(ctx, session.New("fresh")))

	busy, err := m.Acquire(ctx, "busy")
	require.NoError(t, err)

	removed, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	require.NoError(t, busy.Release(ctx))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err = m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "released session was just touched")
}

func TestCleanupService_StartStop(t *testing.T) {
	ctx := context.Background()
	store := drivers.NewMemoryStore()
	m := session.NewManager(store, time.Minute, nil)

	s := session.New("old")
	s.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, s))

	svc := session.NewCleanupService(m, 10*time.Millisecond)
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Start(ctx))
	assert.True(t, svc.IsRunning())

	assert.Eventually(t, func() bool {
		n, err := store.Len(ctx)
		return err == nil && n == 0
	}, time.Second, 5*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())
}
