package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradebot/internal/dialogue"
	"github.com/Veraticus/gradebot/internal/queue"
)

type fakeSource struct {
	ch  chan Update
	err error
}

func (f *fakeSource) Subscribe(context.Context) (<-chan Update, error) {
	return f.ch, f.err
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *recordingQueue) Submit(job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) submitted() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.jobs...)
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(nil, &recordingQueue{})
	require.Error(t, err)
	_, err = NewHandler(&fakeSource{}, nil)
	require.Error(t, err)
}

func TestHandler_EnqueuesUpdates(t *testing.T) {
	src := &fakeSource{ch: make(chan Update, 2)}
	q := &recordingQueue{}
	h, err := NewHandler(src, q, WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	src.ch <- Update{ID: "u-1", UserID: "1001", ChatID: "1001", Kind: dialogue.EventText, Text: "MTH"}
	src.ch <- Update{ID: "u-2", UserID: "1001", ChatID: "1001", Kind: dialogue.EventAction, Data: "cs|MTH101A", MessageRef: "r1"}

	require.Eventually(t, func() bool { return len(q.submitted()) == 2 }, time.Second, time.Millisecond)
	jobs := q.submitted()
	assert.Equal(t, "u-1", jobs[0].ID)
	assert.Equal(t, "MTH", jobs[0].Event.Text)
	assert.Equal(t, "1001", jobs[1].UserID)
	assert.Equal(t, "r1", jobs[1].Event.MessageRef)

	cancel()
	require.NoError(t, <-done)
}

func TestHandler_SurvivesSubmitErrors(t *testing.T) {
	src := &fakeSource{ch: make(chan Update, 1)}
	q := &recordingQueue{err: queue.ErrQueueFull}
	h, err := NewHandler(src, q, WithLogger(quietLogger()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background()) }()

	src.ch <- Update{ID: "u-1", UserID: "1001", Kind: dialogue.EventText, Text: "x"}
	close(src.ch)
	require.NoError(t, <-done)
	assert.Empty(t, q.submitted())
}

func TestHandler_SubscribeError(t *testing.T) {
	h, err := NewHandler(&fakeSource{err: errors.New("down")}, &recordingQueue{}, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Error(t, h.Run(context.Background()))
}
