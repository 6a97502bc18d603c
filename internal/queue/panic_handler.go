package queue

import (
	"context"
	"log/slog"
	"runtime/debug"
)

// PanicHandler is told about panics recovered while handling a job. The
// job is completed as failed either way.
type PanicHandler interface {
	HandlePanic(ctx context.Context, workerID string, job *Job, panicValue any, stackTrace []byte)
}

// PanicHandlerFunc adapts a function to PanicHandler.
type PanicHandlerFunc func(ctx context.Context, workerID string, job *Job, panicValue any, stackTrace []byte)

// HandlePanic calls f.
func (f PanicHandlerFunc) HandlePanic(ctx context.Context, workerID string, job *Job, panicValue any, stackTrace []byte) {
	f(ctx, workerID, job, panicValue, stackTrace)
}

// DefaultPanicHandler logs panics with stack traces.
type DefaultPanicHandler struct {
	logger *slog.Logger
}

// NewDefaultPanicHandler returns the default panic handler. A nil logger
// uses slog.Default.
func NewDefaultPanicHandler(logger *slog.Logger) *DefaultPanicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultPanicHandler{logger: logger}
}

// HandlePanic logs the panic with its stack trace.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, workerID string, job *Job, panicValue any, stackTrace []byte) {
	h.logger.ErrorContext(ctx, "PANIC in worker",
		slog.String("worker_id", workerID),
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.Any("panic", panicValue),
		slog.String("stack_trace", string(stackTrace)))
}

// recoverJob turns a panic into a *PanicError and reports it. It must be
// deferred directly.
func recoverJob(ctx context.Context, workerID string, job *Job, handler PanicHandler, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	pe := &PanicError{Value: r, Stack: debug.Stack()}
	if handler != nil {
		handler.HandlePanic(ctx, workerID, job, r, pe.Stack)
	}
	*errp = pe
}
