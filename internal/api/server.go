// Package api exposes the chat service over HTTP REST.
//
// Endpoints:
//
//	POST   /api/chat                    one chat turn
//	GET    /api/sessions                list a user's sessions
//	POST   /api/sessions                create a session
//	GET    /api/sessions/{id}           fetch one session
//	DELETE /api/sessions/{id}           delete a session
//	GET    /api/sessions/{id}/messages  recent message history
//	GET    /health                      liveness probe
//	GET    /ready                       readiness probe
//	GET    /metrics                     Prometheus metrics
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/havenmind/haven/internal/chat"
	"github.com/havenmind/haven/internal/session"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout caps header reads to resist slowloris clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing a response.
	// Generation with retries can be slow; leave generous headroom.
	WriteTimeout = 120 * time.Second

	// IdleTimeout bounds keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	health  *HealthHandler
	session *SessionHandler
	chat    *ChatHandler
}

// NewServer creates a server with all routes registered. registry may
// be nil to disable the metrics endpoint.
func NewServer(svc *chat.Service, sessions *session.Store, pool *pgxpool.Pool, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		logger:  logger,
		health:  NewHealthHandler(pool, svc, logger),
		session: NewSessionHandler(sessions, logger),
		chat:    NewChatHandler(svc, logger),
	}

	s.health.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)

	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the full handler with middleware applied.
// Middleware order: recovery, then logging.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger))
}

// Run starts the server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
