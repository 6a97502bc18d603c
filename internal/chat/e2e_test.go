package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradebot/internal/dialogue"
	"github.com/Veraticus/gradebot/internal/mocks"
	"github.com/Veraticus/gradebot/internal/queue"
	"github.com/Veraticus/gradebot/internal/session"
	"github.com/Veraticus/gradebot/internal/session/drivers"
)

func TestChat_EndToEnd(t *testing.T) {
	hub, ts := newTestServer(t, nil)

	backend := mocks.NewMockBackend()
	mocks.SeedCatalogue(backend)
	sessions := session.NewManager(drivers.NewMemoryStore(), time.Minute, quietLogger())
	engine, err := dialogue.New(sessions, backend, hub, dialogue.WithLogger(quietLogger()))
	require.NoError(t, err)

	manager := queue.NewManager(queue.WithLogger(quietLogger()))
	pool, err := queue.NewPool(queue.PoolConfig{Size: 2, Manager: manager, Handler: engine, Logger: quietLogger()})
	require.NoError(t, err)
	handler, err := NewHandler(hub, manager, WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	poolDone := make(chan error, 1)
	handlerDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()
	go func() { handlerDone <- handler.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-handlerDone)
		require.NoError(t, <-poolDone)
	}()

	conn := dial(t, ts, "user_id=1001&first_name=Asha")
	waitConnected(t, hub, "1001")

	writeFrame(t, conn, inbound{Type: frameCommand, Text: "/start"})
	f := readFrame(t, conn)
	assert.Equal(t, frameSend, f.Type)
	assert.Contains(t, f.Text, "Hi Asha!")
	assert.Contains(t, f.Text, "How would you like to search?")
	menu := f.Ref

	writeFrame(t, conn, inbound{Type: frameAction, Data: "m|course", Ref: menu})
	f = readFrame(t, conn)
	assert.Equal(t, frameEdit, f.Type)
	assert.Equal(t, menu, f.Ref, "button presses edit the message in place")
	assert.Contains(t, f.Text, "Type a course code")

	writeFrame(t, conn, inbound{Type: frameText, Text: "MTH"})
	f = readFrame(t, conn)
	assert.Contains(t, f.Text, `Courses matching "MTH"`)
	require.NotEmpty(t, f.Keyboard)
	assert.Equal(t, "cs|MTH101A", f.Keyboard[0][0].Data)

	stats := manager.Stats()
	assert.Equal(t, uint64(3), stats.Submitted)
	require.Eventually(t, func() bool { return manager.Stats().Completed == 3 }, time.Second, time.Millisecond)
}
