package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradebot/internal/dialogue"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPool(t *testing.T, size int, m *Manager, h Handler, ph PanicHandler) (cancel func()) {
	t.Helper()
	pool, err := NewPool(PoolConfig{Size: size, Manager: m, Handler: h, PanicHandler: ph, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()
	return func() {
		stop()
		require.NoError(t, <-done)
	}
}

func TestNewPool_Validation(t *testing.T) {
	h := HandlerFunc(func(context.Context, dialogue.Event) error { return nil })

	_, err := NewPool(PoolConfig{Size: 0, Manager: NewManager(), Handler: h})
	require.Error(t, err)
	_, err = NewPool(PoolConfig{Size: 1, Handler: h})
	require.Error(t, err)
	_, err = NewPool(PoolConfig{Size: 1, Manager: NewManager()})
	require.Error(t, err)

	p, err := NewPool(PoolConfig{Size: 3, Manager: NewManager(), Handler: h})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Size())
}

func TestPool_SerializesPerUser(t *testing.T) {
	m := NewManager()

	var mu sync.Mutex
	inFlight := map[string]int{}
	seen := map[string][]string{}
	var overlap atomic.Bool

	h := HandlerFunc(func(_ context.Context, ev dialogue.Event) error {
		mu.Lock()
		inFlight[ev.UserID]++
		if inFlight[ev.UserID] > 1 {
			overlap.Store(true)
		}
		seen[ev.UserID] = append(seen[ev.UserID], ev.UpdateID)
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight[ev.UserID]--
		mu.Unlock()
		return nil
	})
	stop := startPool(t, 4, m, h, nil)
	defer stop()

	users := []string{"a", "b", "c"}
	for n := 1; n <= 5; n++ {
		for _, u := range users {
			require.NoError(t, m.Submit(newJob(u, n)))
		}
	}

	require.Eventually(t, func() bool { return m.Stats().Completed == 15 }, 5*time.Second, 5*time.Millisecond)
	assert.False(t, overlap.Load(), "a user had two events in flight")

	mu.Lock()
	defer mu.Unlock()
	for _, u := range users {
		assert.Equal(t, []string{u + "-1", u + "-2", u + "-3", u + "-4", u + "-5"}, seen[u], "events of %s out of order", u)
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	m := NewManager()

	var panics atomic.Int32
	ph := PanicHandlerFunc(func(_ context.Context, _ string, job *Job, v any, stack []byte) {
		assert.Equal(t, "u1-1", job.ID)
		assert.Equal(t, "kaboom", v)
		assert.NotEmpty(t, stack)
		panics.Add(1)
	})

	h := HandlerFunc(func(_ context.Context, ev dialogue.Event) error {
		if ev.UpdateID == "u1-1" {
			panic("kaboom")
		}
		return nil
	})
	stop := startPool(t, 1, m, h, ph)
	defer stop()

	first, second := newJob("u1", 1), newJob("u1", 2)
	require.NoError(t, m.Submit(first))
	require.NoError(t, m.Submit(second))

	require.Eventually(t, func() bool { return second.State() == StateCompleted }, time.Second, time.Millisecond)
	assert.Equal(t, StateFailed, first.State())
	assert.True(t, IsPanic(first.Err()))
	assert.Equal(t, int32(1), panics.Load())
}

func TestPool_HandlerErrorFailsJob(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	stop := startPool(t, 2, m, HandlerFunc(func(context.Context, dialogue.Event) error { return boom }), nil)
	defer stop()

	job := newJob("u1", 1)
	require.NoError(t, m.Submit(job))
	require.Eventually(t, func() bool { return job.State() == StateFailed }, time.Second, time.Millisecond)
	assert.ErrorIs(t, job.Err(), boom)
	assert.False(t, IsPanic(job.Err()))
}

func TestPool_StopsOnManagerShutdown(t *testing.T) {
	m := NewManager()
	pool, err := NewPool(PoolConfig{
		Size:    2,
		Manager: m,
		Handler: HandlerFunc(func(context.Context, dialogue.Event) error { return nil }),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- pool.Run(context.Background()) }()
	require.Eventually(t, func() bool { return pool.Active() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, m.Shutdown(context.Background()))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pool did not stop")
	}
	assert.Equal(t, 0, pool.Active())
	assert.Equal(t, 0, pool.Busy())
}
