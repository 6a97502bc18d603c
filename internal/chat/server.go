package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// StatsFunc reports runtime statistics for the /stats endpoint.
type StatsFunc func() any

// ServerConfig holds configuration for a Server.
type ServerConfig struct {
	Addr       string
	Hub        *Hub
	// AuthSecret signs client identities on /ws/chat.
	AuthSecret []byte
	Stats      StatsFunc
	Logger     *slog.Logger
}

// Server exposes the chat websocket and operational endpoints.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the router: /ws/chat for clients, /healthz for liveness
// and /stats for queue and session counters.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Hub == nil {
		return nil, fmt.Errorf("server requires a hub")
	}
	if len(config.AuthSecret) < MinSecretLength {
		return nil, fmt.Errorf("server requires an auth secret of at least %d bytes", MinSecretLength)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With(slog.String("component", "http"))

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	r.With(RequireIdentity(config.AuthSecret, logger)).Get("/ws/chat", config.Hub.ServeHTTP)
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		var body any = map[string]int{"connections": config.Hub.Connections()}
		if config.Stats != nil {
			body = config.Stats()
		}
		writeJSON(w, http.StatusOK, body)
	})

	return &Server{
		srv: &http.Server{
			Addr:              config.Addr,
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
		logger: logger,
	}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is done, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", ln.Addr().String()))
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.logger.InfoContext(shutdownCtx, "HTTP server stopped")
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chiMiddleware.GetReqID(r.Context())))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
