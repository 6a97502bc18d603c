package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/gradebot/internal/queue"
)

// Source produces inbound updates. *Hub implements it.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Update, error)
}

// Submitter accepts jobs for processing. *queue.Manager implements it.
type Submitter interface {
	Submit(job *queue.Job) error
}

// Handler moves inbound updates into the queue.
type Handler struct {
	source Source
	queue  Submitter
	logger *slog.Logger
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates a handler.
func NewHandler(source Source, q Submitter, opts ...HandlerOption) (*Handler, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}

	h := &Handler{
		source: source,
		queue:  q,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(slog.String("component", "chat_handler"))
	return h, nil
}

// Run enqueues updates until ctx is done or the source closes.
func (h *Handler) Run(ctx context.Context) error {
	updates, err := h.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to updates: %w", err)
	}

	h.logger.InfoContext(ctx, "Chat handler started")
	defer h.logger.InfoContext(context.WithoutCancel(ctx), "Chat handler stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				h.logger.DebugContext(ctx, "Update channel closed")
				return nil
			}
			h.handleUpdate(ctx, u)
		}
	}
}

// handleUpdate enqueues a single update without blocking.
func (h *Handler) handleUpdate(ctx context.Context, u Update) {
	h.logger.DebugContext(ctx, "Received update",
		slog.String("update_id", u.ID),
		slog.String("user_id", u.UserID),
		slog.String("kind", string(u.Kind)))

	err := h.queue.Submit(queue.NewJob(u.Event()))
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrQueueFull):
		h.logger.WarnContext(ctx, "Dropped update, user is sending too fast",
			slog.String("update_id", u.ID),
			slog.String("user_id", u.UserID))
	default:
		h.logger.ErrorContext(ctx, "Failed to enqueue update",
			slog.String("update_id", u.ID),
			slog.String("user_id", u.UserID),
			slog.Any("error", err))
	}
}
