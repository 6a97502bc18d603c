package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// PoolConfig holds configuration for a Pool.
type PoolConfig struct {
	Size         int
	Manager      *Manager
	Handler      Handler
	PanicHandler PanicHandler // Optional: defaults to logging with stack trace
	Logger       *slog.Logger
}

// Pool runs a fixed number of workers against a Manager.
type Pool struct {
	config PoolConfig
	logger *slog.Logger
	active atomic.Int32
	busy   atomic.Int32
}

// NewPool validates config and creates a pool.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.Size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", config.Size)
	}
	if config.Manager == nil {
		return nil, fmt.Errorf("pool requires a queue manager")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("pool requires a handler")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With(slog.String("component", "worker_pool"))
	if config.PanicHandler == nil {
		config.PanicHandler = NewDefaultPanicHandler(logger)
	}
	return &Pool{config: config, logger: logger}, nil
}

// Run starts the workers and blocks until all of them have stopped, which
// happens when ctx is done or the manager is shut down.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, p.config.Size)

	for i := range p.config.Size {
		id := fmt.Sprintf("worker-%d", i+1)
		w := &worker{
			id:           id,
			manager:      p.config.Manager,
			handler:      p.config.Handler,
			panicHandler: p.config.PanicHandler,
			logger:       p.logger.With(slog.String("worker_id", id)),
			busy:         func(d int32) { p.busy.Add(d) },
		}
		wg.Add(1)
		p.active.Add(1)
		go func() {
			defer wg.Done()
			defer p.active.Add(-1)
			if err := w.run(ctx); err != nil {
				errs <- err
			}
		}()
	}

	p.logger.InfoContext(ctx, "Worker pool started", slog.Int("size", p.config.Size))
	wg.Wait()
	close(errs)
	p.logger.InfoContext(context.WithoutCancel(ctx), "Worker pool stopped")

	if err, ok := <-errs; ok {
		return err
	}
	return nil
}

// Size returns the configured number of workers.
func (p *Pool) Size() int {
	return p.config.Size
}

// Active returns how many workers are running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Busy returns how many workers are handling a job right now.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}
