package backendpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// Autoscaler evaluates a set of AutoscalingPolicy rules against live Stats
// and adjusts a backend's MaxConnections, recording a ScalingEvent
// per action. Grounded on the Python original's AutoScaler
// (original_source/backend/app/autoscaling/scaler.py): same
// collect-metrics / evaluate-policies / execute-action / cooldown shape,
// reimplemented as a single goroutine driven by a time.Ticker instead of a
// threading.Thread + time.sleep loop (spec.md §9's "pick one concurrency
// model" redesign note).
type Autoscaler struct {
	registry *Registry
	log      *slog.Logger

	mu       sync.Mutex
	policies map[string][]domain.AutoscalingPolicy // server alias -> policies
	lastRun  map[string]time.Time                  // policy name+alias -> last trigger, for cooldown
	events   []domain.ScalingEvent
}

// NewAutoscaler creates an Autoscaler over registry.
func NewAutoscaler(registry *Registry, log *slog.Logger) *Autoscaler {
	return &Autoscaler{
		registry: registry,
		log:      log,
		policies: make(map[string][]domain.AutoscalingPolicy),
		lastRun:  make(map[string]time.Time),
	}
}

// SetPolicies replaces the policies evaluated for one backend alias.
func (a *Autoscaler) SetPolicies(alias string, policies []domain.AutoscalingPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.policies[alias] = policies
}

// Run evaluates all policies once per tick until ctx is cancelled.
func (a *Autoscaler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.evaluateAll()
		}
	}
}

func (a *Autoscaler) evaluateAll() {
	a.mu.Lock()
	snapshot := make(map[string][]domain.AutoscalingPolicy, len(a.policies))
	for alias, pols := range a.policies {
		snapshot[alias] = pols
	}
	a.mu.Unlock()

	for alias, pols := range snapshot {
		stats := a.registry.Stats(alias)
		for _, pol := range pols {
			a.evaluate(alias, pol, stats)
		}
	}
}

func (a *Autoscaler) evaluate(alias string, pol domain.AutoscalingPolicy, stats *Stats) {
	value := metricValue(pol.Metric, stats)

	triggered := false
	if pol.Direction == domain.ScaleUp {
		triggered = value >= pol.Threshold
	} else {
		triggered = value <= pol.Threshold
	}
	if !triggered {
		return
	}

	key := pol.Name + ":" + alias
	a.mu.Lock()
	if last, ok := a.lastRun[key]; ok && time.Since(last) < time.Duration(pol.Cooldown)*time.Second {
		a.mu.Unlock()
		return
	}
	a.lastRun[key] = time.Now()
	a.mu.Unlock()

	server, ok := a.registry.Server(alias)
	if !ok {
		return
	}

	previous := server.MaxConnections
	next := previous
	if pol.Direction == domain.ScaleUp {
		next = previous + pol.Step
		if pol.Max > 0 && next > pol.Max {
			next = pol.Max
		}
	} else {
		next = previous - pol.Step
		if next < pol.Min {
			next = pol.Min
		}
	}

	event := domain.ScalingEvent{
		ServerAlias:  alias,
		PolicyName:   pol.Name,
		Direction:    pol.Direction,
		MetricValue:  value,
		PreviousSize: previous,
		NewSize:      next,
		TriggeredAt:  time.Now(),
	}

	if next != previous {
		server.MaxConnections = next
		if err := a.registry.Upsert(server); err != nil {
			a.log.Warn("autoscaler: failed to apply scaled pool size", slog.String("alias", alias), slog.Any("err", err))
		} else {
			a.log.Info("autoscaler: adjusted backend pool size",
				slog.String("alias", alias),
				slog.String("policy", pol.Name),
				slog.Int("previous", previous),
				slog.Int("new", next),
			)
		}
	}

	a.mu.Lock()
	a.events = append(a.events, event)
	if len(a.events) > 100 {
		a.events = a.events[len(a.events)-100:]
	}
	a.mu.Unlock()
}

// Events returns a copy of the last scaling events (most recent last),
// bounded at 100 entries.
func (a *Autoscaler) Events() []domain.ScalingEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.ScalingEvent, len(a.events))
	copy(out, a.events)
	return out
}

func metricValue(metric string, stats *Stats) float64 {
	switch metric {
	case "active_queries", "active_connections":
		return float64(stats.ActiveQueries())
	case "error_rate":
		return stats.ErrorRate() * 100
	case "avg_time_ms":
		return stats.AvgTimeMs()
	default:
		return float64(stats.ActiveQueries())
	}
}
