// Package http provides HTTP transport layer components.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sqlproxy/queryplane/internal/shared/metrics"
	"github.com/sqlproxy/queryplane/internal/transport/http/middleware"
)

// NewRouter creates the proxy's public chi router: the liveness/readiness
// pair the teacher's router always carried, plus the single query
// execution endpoint that replaces the teacher's CRUD surface (spec.md
// §6). maxBodyBytes bounds the /v1/query request body; shutdownCoord may
// be nil, in which case the Shutdown middleware is skipped (tests that
// don't care about drain behavior).
func NewRouter(logger *slog.Logger, httpMetrics metrics.HTTPMetrics, shutdownCoord middleware.ShutdownCoordinator, maxBodyBytes int64, healthHandler, readyHandler, queryHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	// Middleware stack (see internal/transport/http/middleware/doc.go for
	// the intended ordering).
	r.Use(middleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))
	if shutdownCoord != nil {
		r.Use(middleware.Shutdown(shutdownCoord))
	}
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.BodyLimiter(maxBodyBytes))
	r.Use(middleware.Metrics(httpMetrics))
	r.Use(middleware.Tracing)

	// Health check endpoints
	r.Get("/health", healthHandler.ServeHTTP)
	r.Get("/ready", readyHandler.ServeHTTP)

	// Query execution endpoint
	r.Post("/v1/query", queryHandler.ServeHTTP)

	return r
}
