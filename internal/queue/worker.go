package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/gradebot/internal/dialogue"
)

// Handler processes one event. *dialogue.Engine implements it.
type Handler interface {
	Handle(ctx context.Context, ev dialogue.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev dialogue.Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev dialogue.Event) error {
	return f(ctx, ev)
}

// worker pulls jobs from the manager and runs them one at a time.
type worker struct {
	id           string
	manager      *Manager
	handler      Handler
	panicHandler PanicHandler
	logger       *slog.Logger
	busy         func(delta int32)
}

// run processes jobs until ctx is done or the manager is closed.
func (w *worker) run(ctx context.Context) error {
	w.logger.DebugContext(ctx, "Worker starting")
	for {
		job, err := w.manager.RequestJob(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueStopped) || ctx.Err() != nil {
				w.logger.DebugContext(ctx, "Worker stopping")
				return nil
			}
			return fmt.Errorf("worker %s: %w", w.id, err)
		}
		w.process(ctx, job)
	}
}

// process handles job and completes it. The handler runs detached from ctx
// so that shutdown lets the current event finish; the engine bounds it.
func (w *worker) process(ctx context.Context, job *Job) {
	w.busy(1)
	defer w.busy(-1)

	err := w.handle(context.WithoutCancel(ctx), job)
	if err != nil && !IsPanic(err) {
		w.logger.WarnContext(ctx, "Job failed",
			slog.String("job_id", job.ID),
			slog.String("user_id", job.UserID),
			slog.Any("error", err))
	}
	if cerr := w.manager.CompleteJob(job, err); cerr != nil {
		w.logger.ErrorContext(ctx, "Failed to complete job",
			slog.String("job_id", job.ID),
			slog.Any("error", cerr))
	}
}

func (w *worker) handle(ctx context.Context, job *Job) (err error) {
	defer recoverJob(ctx, w.id, job, w.panicHandler, &err)
	return w.handler.Handle(ctx, job.Event)
}
