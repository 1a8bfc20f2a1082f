// Command proxy is the SQL proxy's entrypoint: it loads configuration,
// wires the control-plane repositories, the backend pool, the policy/
// masking/cache/executor/router stack, the audit sink and anomaly
// detector, then serves the query execution endpoint on a public
// listener and the health/metrics surface on a separate internal one
// (spec.md §6; SPEC_FULL.md §§4-9). Structurally grounded on the
// teacher's dual-server graceful shutdown, generalized from its CRUD
// API to the proxy's own background loops and drain coordinator.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sqlproxy/queryplane/internal/anomaly"
	"github.com/sqlproxy/queryplane/internal/audit"
	"github.com/sqlproxy/queryplane/internal/backendpool"
	"github.com/sqlproxy/queryplane/internal/executor"
	"github.com/sqlproxy/queryplane/internal/infra/config"
	"github.com/sqlproxy/queryplane/internal/infra/observability"
	"github.com/sqlproxy/queryplane/internal/infra/postgres"
	"github.com/sqlproxy/queryplane/internal/infra/resilience"
	"github.com/sqlproxy/queryplane/internal/masking"
	"github.com/sqlproxy/queryplane/internal/opshttp"
	"github.com/sqlproxy/queryplane/internal/policy"
	"github.com/sqlproxy/queryplane/internal/proxyapp"
	"github.com/sqlproxy/queryplane/internal/resultcache"
	"github.com/sqlproxy/queryplane/internal/router"
	"github.com/sqlproxy/queryplane/internal/timeoutreg"
	httpTransport "github.com/sqlproxy/queryplane/internal/transport/http"
	"github.com/sqlproxy/queryplane/internal/domain"
	"github.com/sqlproxy/queryplane/internal/transport/http/handler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("proxy starting",
		slog.Int("port", cfg.Port),
		slog.Int("internal_port", cfg.InternalPort),
		slog.String("log_level", cfg.LogLevel),
	)

	controlPlanePool, err := openControlPlanePool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer controlPlanePool.Close()
	logger.Info("control-plane database connected")

	querier := postgres.NewPoolQuerier(controlPlanePool)
	resilienceCfg := resilience.NewResilienceConfig(cfg)

	registry := backendpool.NewRegistry(backendpool.PoolConfig{
		MaxConns:        cfg.DBPoolMaxConns,
		MinConns:        cfg.DBPoolMinConns,
		MaxConnLifetime: cfg.DBPoolMaxLifetime,
	})
	defer registry.Close()

	backendRepo := postgres.NewBackendServerRepo()
	if err := seedBackendPool(ctx, backendRepo, querier, registry, logger); err != nil {
		return err
	}

	metricsRegistry, httpMetrics := observability.NewMetricsRegistry()

	timeouts := timeoutreg.New(nil, resilienceCfg.Timeout.Default, func(qid string, reason timeoutreg.CancelReason) {
		logger.Warn("query cancelled", slog.String("query_id", qid), slog.String("reason", string(reason)))
	})

	auditRepo := postgres.NewAuditRepo()
	auditRows := make(chan domain.AuditRow, 1024)
	auditSink := audit.New(auditRepo, querier, auditRows, logger)

	exec := executor.New(registry, timeouts, auditSink, resilienceCfg.CircuitBreaker, cfg.DistributedMaxWorkers, logger)

	retrier := resilience.NewRetrier("router", resilienceCfg.Retry, resilience.WithRetryLogger(logger))
	rtr := router.New(registry, retrier)

	policyRepo := postgres.NewPolicyRepo()
	policyEngine := policy.New(policyRepo.Load, logger)
	if err := policyEngine.Reload(ctx); err != nil {
		logger.Warn("initial policy load failed; starting with empty policy set", slog.Any("err", err))
	}

	maskingRepo := postgres.NewMaskingRuleRepo()
	masker := masking.New()
	if rules, err := maskingRepo.Load(ctx, querier); err != nil {
		logger.Warn("initial masking rule load failed; starting with no masking rules", slog.Any("err", err))
	} else if errs := masker.SetRules(rules); len(errs) > 0 {
		for _, ruleErr := range errs {
			logger.Warn("masking rule rejected", slog.Any("err", ruleErr))
		}
	}

	cache := resultcache.New(resilienceCfg.Timeout.Database, cfg.CacheMaxEntries)

	anomalyAlerts := anomaly.New(
		auditRows,
		anomaly.DefaultClassifiers(),
		proxyapp.AnomalyAlertLogger{Log: logger},
		anomaly.DefaultConfig(),
		logger,
	)

	pipeline := proxyapp.New(rtr, policyEngine, exec, masker, cache, proxyapp.CacheConfig{
		TTL:     cfg.CacheDefaultTTL,
		Enabled: true,
	}, logger)

	shutdownCoord := resilience.NewShutdownCoordinator(resilienceCfg.Shutdown, resilience.WithShutdownLogger(logger))

	healthHandler := handler.NewHealthHandler()
	readyHandler := handler.NewReadyHandler(controlPlanePool, logger)
	queryHandler := handler.NewQueryHandler(pipeline)
	publicRouter := httpTransport.NewRouter(logger, httpMetrics, shutdownCoord, cfg.HTTPMaxBodyBytes, healthHandler, readyHandler, queryHandler)

	opsCfg := opshttp.Config{RateLimitRPS: cfg.RateLimitRPS, ReadyTimeout: cfg.HealthCheckDBTimeout}
	opsServer := opshttp.New(controlPlanePool, registry, metricsRegistry, opsCfg, logger)

	publicAddr := fmt.Sprintf(":%d", cfg.Port)
	publicSrv := &http.Server{
		Addr:              publicAddr,
		Handler:           publicRouter,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		MaxHeaderBytes:    cfg.HTTPMaxHeaderBytes,
	}

	internalAddr := fmt.Sprintf("%s:%d", cfg.InternalBindAddress, cfg.InternalPort)
	internalSrv := &http.Server{
		Addr:              internalAddr,
		Handler:           opsServer.Handler(),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		MaxHeaderBytes:    cfg.HTTPMaxHeaderBytes,
	}

	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	autoscaler := backendpool.NewAutoscaler(registry, logger)
	prober := backendpool.NewHealthProber(registry, cfg.HealthCheckDBTimeout, resilienceCfg.CircuitBreaker, logger)

	var bg sync.WaitGroup
	bg.Add(5)
	go func() { defer bg.Done(); policyEngine.Run(backgroundCtx, time.Duration(cfg.PolicyUpdateIntervalSeconds)*time.Second) }()
	go func() { defer bg.Done(); cache.Sweep(backgroundCtx, cfg.CacheDefaultTTL) }()
	go func() { defer bg.Done(); anomalyAlerts.Run(backgroundCtx) }()
	go func() { defer bg.Done(); autoscaler.Run(backgroundCtx, time.Duration(cfg.AutoscalingCheckIntervalSeconds)*time.Second) }()
	go func() {
		defer bg.Done()
		probeHealthLoop(backgroundCtx, prober, registry, cfg.HealthCheckDBTimeout, logger)
	}()

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("public server listening", slog.String("addr", publicAddr))
		serverErrors <- publicSrv.ListenAndServe()
	}()
	go func() {
		logger.Info("internal server listening", slog.String("addr", internalAddr))
		serverErrors <- internalSrv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("err", err))
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop accepting new requests at the middleware layer and wait for
	// in-flight ones to finish before the HTTP servers themselves start
	// shutting down sockets out from under them.
	shutdownCoord.InitiateShutdown()
	if err := shutdownCoord.WaitForDrain(shutdownCtx); err != nil {
		logger.Warn("drain period expired with requests still active", slog.Any("err", err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := publicSrv.Shutdown(shutdownCtx); err != nil {
			publicSrv.Close()
			logger.Error("public server graceful shutdown failed", slog.Any("err", err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := internalSrv.Shutdown(shutdownCtx); err != nil {
			internalSrv.Close()
			logger.Error("internal server graceful shutdown failed", slog.Any("err", err))
		}
	}()
	wg.Wait()

	// Only stop the background loops (including the anomaly detector
	// draining auditRows) once every in-flight request has finished
	// writing its final audit row.
	cancelBackground()
	bg.Wait()
	close(auditRows)

	logger.Info("proxy stopped gracefully")
	return nil
}

// openControlPlanePool opens the control-plane database (policies,
// masking rules, backend registry, audit log) - distinct from the
// per-backend pools backendpool.Registry manages for routed queries.
func openControlPlanePool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(connectCtx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:        cfg.DBPoolMaxConns,
		MinConns:        cfg.DBPoolMinConns,
		MaxConnLifetime: cfg.DBPoolMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("control-plane database not reachable at startup: %w", err)
	}
	return pool, nil
}

// seedBackendPool loads the configured server groups and backend servers
// into registry so the router/executor have somewhere to send queries.
func seedBackendPool(ctx context.Context, repo *postgres.BackendServerRepo, q domain.Querier, registry *backendpool.Registry, logger *slog.Logger) error {
	groups, err := repo.LoadGroups(ctx, q)
	if err != nil {
		return fmt.Errorf("load server groups: %w", err)
	}
	for _, g := range groups {
		if err := registry.UpsertGroup(g); err != nil {
			logger.Warn("failed to register server group", slog.String("group", string(g.ID)), slog.Any("err", err))
		}
	}

	servers, err := repo.LoadServers(ctx, q)
	if err != nil {
		return fmt.Errorf("load backend servers: %w", err)
	}
	for _, s := range servers {
		if !s.IsActive {
			continue
		}
		if err := registry.Upsert(s); err != nil {
			logger.Warn("failed to register backend server", slog.String("alias", s.Alias), slog.Any("err", err))
		}
	}
	logger.Info("backend pool seeded", slog.Int("groups", len(groups)), slog.Int("servers", len(servers)))
	return nil
}

// probeHealthLoop ticks HealthProber.ProbeAll over every registered
// backend alias; ProbeAll has no loop of its own, Registry.AllStats
// is the only way to enumerate the live alias set.
func probeHealthLoop(ctx context.Context, prober *backendpool.HealthProber, registry *backendpool.Registry, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			aliases := aliasesFromStats(registry.AllStats())
			if len(aliases) == 0 {
				continue
			}
			statuses := prober.ProbeAll(ctx, aliases)
			for _, s := range statuses {
				if !s.Healthy {
					logger.Warn("backend unhealthy", slog.String("alias", s.Alias), slog.Any("err", s.Err))
				}
			}
		}
	}
}

func aliasesFromStats(stats []backendpool.Stats) []string {
	out := make([]string, 0, len(stats))
	for i := range stats {
		out = append(out, stats[i].Alias)
	}
	return out
}
