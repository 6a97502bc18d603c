package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultCleanupInterval is the default interval at which expired sessions are cleaned up.
	DefaultCleanupInterval = 1 * time.Minute
)

// CleanupService periodically reclaims idle sessions. Reclaiming a session
// has the same effect as the user cancelling.
type CleanupService struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewCleanupService creates a cleanup service. A non-positive interval
// selects DefaultCleanupInterval.
func NewCleanupService(manager *Manager, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		manager:  manager,
		interval: interval,
		logger:   manager.logger.With(slog.String("component", "session.cleanup")),
	}
}

// Start begins the periodic cleanup process.
func (c *CleanupService) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(cleanupCtx, c.done)

	return nil
}

// Stop stops the service and waits for the loop to exit.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// IsRunning returns whether the cleanup service is currently running.
func (c *CleanupService) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *CleanupService) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Cleanup service stopping")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *CleanupService) sweep(ctx context.Context) {
	start := time.Now()
	removed, err := c.manager.CleanupExpired(ctx)
	if err != nil && ctx.Err() == nil {
		c.logger.WarnContext(ctx, "Session cleanup failed", slog.Any("error", err))
	}
	if removed > 0 {
		c.logger.InfoContext(ctx, "Cleaned up idle sessions",
			slog.Int("removed", removed),
			slog.Duration("duration", time.Since(start)))
	}

	stats := c.manager.Stats(ctx)
	c.logger.DebugContext(ctx, "Session stats after cleanup",
		slog.Int("total", stats["total"]),
		slog.Int("active", stats["active"]))
}
