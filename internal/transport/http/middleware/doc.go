// Package middleware provides HTTP middleware for the transport layer.
//
// This package contains reusable middleware components for the Chi router
// that implement cross-cutting concerns like request draining, panic
// recovery, logging, and security headers. Authentication, rate limiting,
// and idempotency middleware are not carried here: this proxy has no
// principal to authenticate (spec.md §1 leaves that to an upstream
// gateway) and no POST-with-side-effects CRUD surface to deduplicate.
//
// # Middleware Ordering
//
// Middleware should be applied in this order (outermost to innermost
// execution):
//
//  1. RequestID   - Assigns unique request ID for tracing
//  2. Logger      - Logs request/response with timing
//  3. Recoverer   - Catches panics and returns 500 response
//  4. Shutdown    - Rejects new requests once drain has started
//  5. Security    - OWASP security headers
//  6. BodyLimiter - Bounds request body size
//  7. Metrics     - Prometheus request count/duration
//  8. Tracing     - OpenTelemetry spans
//
// # Chi Router Integration
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID)
//	r.Use(middleware.RequestLogger(logger))
//	r.Use(middleware.Recoverer(logger))
//	r.Use(middleware.Shutdown(coordinator))
//	r.Use(middleware.SecureHeaders)
//	r.Use(middleware.BodyLimiter(cfg.HTTPMaxBodyBytes))
//	r.Use(middleware.Metrics(httpMetrics))
//	r.Use(middleware.Tracing)
//
// # Error Responses
//
// All middleware use RFC 7807 Problem Details format for error responses
// via the contract package.
//
// # See Also
//
//   - Chi router documentation: https://github.com/go-chi/chi
//   - contract package: RFC 7807 error responses
package middleware
