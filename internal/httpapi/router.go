// Package httpapi serves the operator-facing HTTP surface of the bank
// server: liveness, readiness, ledger statistics and prometheus metrics.
// The client protocol itself is served by package server.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/bankledger/internal/service/bank"
)

// StatsProvider reports ledger counts.
type StatsProvider interface {
	Stats() bank.Stats
}

// ReadyChecker is implemented by storage backends that can report health.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Server wires handlers and middleware using Chi.
type Server struct {
	stats StatsProvider
	ready ReadyChecker
	log   *slog.Logger
	rt    *chi.Mux
}

// New constructs the admin HTTP server. ready may be nil when the backend
// has no health check.
func New(stats StatsProvider, ready ReadyChecker, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{stats: stats, ready: ready, log: logger, rt: r}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

func (s *Server) routes() {
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Get("/v1/stats", s.getStats)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}
