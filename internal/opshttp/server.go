// Package opshttp exposes the proxy's internal operability surface —
// /healthz, /readyz, /metrics — grounded on the teacher's
// internal/transport/http router/handler conventions, kept deliberately
// separate from the CRUD/admin REST API the teacher's public router
// serves (spec.md §1 excludes that surface from this module; see
// SPEC_FULL.md §6).
package opshttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlproxy/queryplane/internal/backendpool"
)

// DatabaseChecker probes the control-plane database's reachability —
// the same narrow port the teacher's ReadyHandler depends on
// (internal/transport/http/handler/ready.go).
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// Config bounds the ops surface's behaviour.
type Config struct {
	RateLimitRPS int
	ReadyTimeout time.Duration
}

// Server owns the chi mux for the internal ops surface. It is started on
// its own bind address/port, separate from any public-facing listener —
// this module has none; see SPEC_FULL.md §6.
type Server struct {
	mux      chi.Router
	db       DatabaseChecker
	registry *backendpool.Registry
	log      *slog.Logger
	cfg      Config
}

// New builds the ops mux: /healthz (liveness, always 200 once the
// process is up), /readyz (control-plane DB reachable and at least one
// backend server registered, active or not), /metrics (Prometheus
// exposition).
func New(db DatabaseChecker, registry *backendpool.Registry, promRegistry *prometheus.Registry, cfg Config, log *slog.Logger) *Server {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}

	s := &Server{mux: chi.NewRouter(), db: db, registry: registry, log: log, cfg: cfg}

	s.mux.Use(chiMiddleware.RequestID)
	s.mux.Use(chiMiddleware.RealIP)
	s.mux.Use(chiMiddleware.Recoverer)
	s.mux.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))

	s.mux.Get("/healthz", s.liveHandler)
	s.mux.Get("/readyz", s.readyHandler)
	s.mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	return s
}

// Handler returns the ops mux for mounting under an *http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, http.StatusOK, "alive", nil)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadyTimeout)
	defer cancel()

	checks := make(map[string]string)
	ok := true

	if err := s.db.Ping(ctx); err != nil {
		checks["control_plane_db"] = "failed"
		ok = false
	} else {
		checks["control_plane_db"] = "ok"
	}

	if active := s.activeBackendCount(); active == 0 {
		checks["backend_pool"] = "no active backends"
		ok = false
		s.log.Warn("readiness check found no active backends")
	} else {
		checks["backend_pool"] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ok {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSONStatus(w, status, state, checks)
}

func (s *Server) activeBackendCount() int {
	if s.registry == nil {
		return 0
	}
	return len(s.registry.AllStats())
}

func writeJSONStatus(w http.ResponseWriter, status int, state string, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": state, "checks": checks})
}
