package backendpool

import (
	"context"
	"log/slog"
	"time"

	"github.com/sqlproxy/queryplane/internal/infra/resilience"
)

// HealthStatus is the outcome of one probe against a backend.
type HealthStatus struct {
	Alias   string
	Healthy bool
	Latency time.Duration
	Err     error
}

// HealthProber pings registered backends through a per-alias circuit
// breaker, grounded on the teacher's postgres.DatabaseHealthChecker
// (internal/infra/postgres/health_checker.go) generalized from a single
// pool to the whole registry and wrapped with resilience.CircuitBreaker so
// a wedged backend stops being probed on every tick. It runs no loop of
// its own; each ProbeAll call is one round, and the caller sets the pace.
type HealthProber struct {
	registry *Registry
	timeout  time.Duration
	log      *slog.Logger

	breakers map[string]resilience.CircuitBreaker
	cbCfg    resilience.CircuitBreakerConfig
}

// NewHealthProber creates a prober over registry using cfg for each
// per-backend circuit breaker.
func NewHealthProber(registry *Registry, timeout time.Duration, cbCfg resilience.CircuitBreakerConfig, log *slog.Logger) *HealthProber {
	return &HealthProber{
		registry: registry,
		timeout:  timeout,
		log:      log,
		breakers: make(map[string]resilience.CircuitBreaker),
		cbCfg:    cbCfg,
	}
}

func (p *HealthProber) breakerFor(alias string) resilience.CircuitBreaker {
	if cb, ok := p.breakers[alias]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker("backend:"+alias, p.cbCfg, resilience.WithLogger(p.log))
	p.breakers[alias] = cb
	return cb
}

// ProbeAll pings each server named in aliases and returns one
// HealthStatus per alias. A server whose circuit breaker is open is
// reported unhealthy without attempting a connection.
func (p *HealthProber) ProbeAll(ctx context.Context, aliases []string) []HealthStatus {
	out := make([]HealthStatus, 0, len(aliases))
	for _, alias := range aliases {
		out = append(out, p.probe(ctx, alias))
	}
	return out
}

func (p *HealthProber) probe(ctx context.Context, alias string) HealthStatus {
	cb := p.breakerFor(alias)
	start := time.Now()

	_, err := cb.Execute(ctx, func() (any, error) {
		conn, err := p.registry.Acquire(ctx, alias)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return nil, conn.DB().PingContext(pingCtx)
	})

	status := HealthStatus{Alias: alias, Latency: time.Since(start), Err: err, Healthy: err == nil}
	if err != nil {
		p.log.Warn("backend health probe failed", slog.String("alias", alias), slog.Any("err", err), slog.String("circuit_state", string(cb.State())))
	}
	return status
}
