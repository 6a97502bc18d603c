package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/gradebot/internal/chat"
	"github.com/Veraticus/gradebot/internal/config"
	"github.com/Veraticus/gradebot/internal/dialogue"
	"github.com/Veraticus/gradebot/internal/gate"
	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/queue"
	"github.com/Veraticus/gradebot/internal/session"
	"github.com/Veraticus/gradebot/internal/session/drivers"
)

// app holds all initialized components.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *session.Manager
	cleanup  *session.CleanupService
	hub      *chat.Hub
	manager  *queue.Manager
	pool     *queue.Pool
	handler  *chat.Handler
	server   *chat.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	client, err := gateway.New(gateway.Config{
		BaseURL:    cfg.BackendBaseURL,
		Timeout:    cfg.BackendTimeout,
		MaxRetries: cfg.BackendRetries,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	store, err := drivers.Open(ctx, drivers.Options{
		Kind:       drivers.Kind(cfg.SessionStore),
		RedisURL:   cfg.RedisURL,
		SQLitePath: cfg.SQLitePath,
		TTL:        cfg.SessionIdleTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	sessions := session.NewManager(store, cfg.SessionIdleTimeout, logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		cleanup:  session.NewCleanupService(sessions, cfg.SessionCleanupInterval),
		hub:      chat.NewHub(chat.WithOriginPatterns(cfg.AllowedOrigins...), chat.WithHubLogger(logger)),
		manager:  queue.NewManager(queue.WithMaxPending(cfg.MaxPendingPerUser), queue.WithLogger(logger)),
	}

	engine, err := dialogue.New(sessions, client, a.hub,
		dialogue.WithGate(gate.New(cfg.AdminIDs, client, logger)),
		dialogue.WithAdminChannel(cfg.AdminChannelID),
		dialogue.WithTransitionTimeout(cfg.TransitionTimeout),
		dialogue.WithLogger(logger),
	)
	if err != nil {
		return nil, a.abort(err)
	}

	a.pool, err = queue.NewPool(queue.PoolConfig{
		Size:    cfg.Workers,
		Manager: a.manager,
		Handler: engine,
		Logger:  logger,
	})
	if err != nil {
		return nil, a.abort(err)
	}

	a.handler, err = chat.NewHandler(a.hub, a.manager, chat.WithLogger(logger))
	if err != nil {
		return nil, a.abort(err)
	}

	a.server, err = chat.NewServer(chat.ServerConfig{
		Addr:       cfg.ListenAddr,
		Hub:        a.hub,
		AuthSecret: []byte(cfg.ChatAuthSecret),
		Stats:      a.stats,
		Logger:     logger,
	})
	if err != nil {
		return nil, a.abort(err)
	}
	return a, nil
}

func (a *app) abort(err error) error {
	if cerr := a.sessions.Close(); cerr != nil {
		a.logger.Warn("Failed to close session store", slog.Any("error", cerr))
	}
	return err
}

// run starts every component and blocks until ctx is done or one of them
// fails. Shutdown stops intake first, lets queued events finish within the
// shutdown timeout, then closes connections and the session store.
func (a *app) run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	if err := a.cleanup.Start(egCtx); err != nil {
		return a.abort(err)
	}

	eg.Go(func() error {
		return a.server.Run(egCtx, a.cfg.ShutdownTimeout)
	})
	eg.Go(func() error {
		return a.handler.Run(egCtx)
	})
	eg.Go(func() error {
		// Workers stop once the manager is shut down below.
		return a.pool.Run(context.WithoutCancel(egCtx))
	})
	eg.Go(func() error {
		<-egCtx.Done()
		a.logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(egCtx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.manager.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Queued events were dropped", slog.Any("error", err))
		}
		a.hub.Close()
		return nil
	})

	a.logger.Info("gradebot started",
		slog.String("addr", a.cfg.ListenAddr),
		slog.String("session_store", a.cfg.SessionStore),
		slog.Int("workers", a.cfg.Workers))

	err := eg.Wait()
	a.cleanup.Stop()
	if cerr := a.sessions.Close(); cerr != nil {
		a.logger.Warn("Failed to close session store", slog.Any("error", cerr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("gradebot stopped with error", slog.Any("error", err))
		return err
	}
	a.logger.Info("gradebot stopped")
	return nil
}

// stats backs the /stats endpoint.
func (a *app) stats() any {
	return map[string]any{
		"queue":       a.manager.Stats(),
		"sessions":    a.sessions.Stats(context.Background()),
		"connections": a.hub.Connections(),
		"workers": map[string]int{
			"size":   a.pool.Size(),
			"active": a.pool.Active(),
			"busy":   a.pool.Busy(),
		},
	}
}
