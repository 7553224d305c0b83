// Package server exposes the on-device diagnostics HTTP surface: health
// probe, status snapshot, and expvar counters. It carries no control
// surface; commands reach the safe over MQTT only.
package server

import (
	"context"
	"encoding/json"
	"expvar"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/safehold-systems/safehold/pkg/types"
)

// StatusFn returns the current composed status snapshot.
type StatusFn func() types.Status

// Server is the diagnostics HTTP server.
type Server struct {
	addr     string
	statusFn StatusFn
	logger   *slog.Logger
	router   chi.Router
	srv      *http.Server
}

// New creates the diagnostics server.
func New(addr string, statusFn StatusFn, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{addr: addr, statusFn: statusFn, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())

	s.router = r
	return s
}

// Start begins serving and blocks until shutdown or listen failure.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("diagnostics server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if err := json.NewEncoder(w).Encode(s.statusFn()); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}
