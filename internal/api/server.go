// Package api exposes the agent over HTTP: turn submission, thread
// CRUD, preference management, and the memory-graph export.
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: logging and recovery middleware
//   - chat.go: POST /chat turn submission
//   - threads.go: thread CRUD
//   - preferences.go: declarative memory endpoints and /categories
//   - health.go: liveness probe
//   - response.go: JSON helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/johnymontana/memory-graph-workshop/internal/agent"
	"github.com/johnymontana/memory-graph-workshop/internal/content"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
	"github.com/johnymontana/memory-graph-workshop/internal/memory"
	"github.com/johnymontana/memory-graph-workshop/internal/preferences"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	// ShutdownTimeout is the maximum wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads (Slowloris mitigation).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because a turn can spend most of it
	// inside LLM calls.
	WriteTimeout = 120 * time.Second

	// IdleTimeout applies to keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer wires all handlers. prefs may be nil when the memory
// subsystem is disabled; preference endpoints then answer 503.
func NewServer(ag *agent.Agent, repo *memory.Repository, prefs *preferences.Store, source content.Source, logger log.Logger) *Server {
	mux := http.NewServeMux()

	NewHealthHandler().RegisterRoutes(mux)
	NewChatHandler(ag, logger).RegisterRoutes(mux)
	NewThreadHandler(repo, logger).RegisterRoutes(mux)
	NewPreferenceHandler(prefs, repo, source, logger).RegisterRoutes(mux)

	return &Server{mux: mux, logger: logger}
}

// Handler returns the routes with middleware applied, recovery
// outermost.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, panicRecovery(s.logger), requestLogging(s.logger))
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
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
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
