// Package anomaly consumes finalised audit rows over the one-way
// pipeline from internal/audit and classifies each across several axes,
// per spec.md §4.8. Classification never blocks the request path: it
// runs off a bounded channel, entirely decoupled from the executor.
package anomaly

import (
	"context"
	"log/slog"
	"time"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// Severity buckets a Score against the alert thresholds (spec.md §3's
// AnomalyAlert.severity∈{low,med,high,critical}).
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a derived AnomalyAlert record, linked back to the AuditRow
// that triggered it.
type Alert struct {
	Classifier string
	Type       string
	Severity   Severity
	Score      float64
	AuditRowID domain.ID
	User       string
	At         time.Time
}

// Classifier returns (isAnomaly, score∈[0,1]) for one detection axis,
// given the finalised row and the rolling state it maintains internally.
type Classifier interface {
	Name() string
	Classify(row domain.AuditRow) (isAnomaly bool, score float64)
}

// AlertSink receives raised alerts. Kept narrow and swappable (log-only
// in dev, a real store in production) the same way domain.AuditSink is
// narrow relative to domain.AuditRepository.
type AlertSink interface {
	Raise(ctx context.Context, alert Alert) error
}

// Detector owns the input channel, a pool of worker goroutines, and the
// registered classifiers. Workers run independently per row — there is
// no shared mutable state across rows beyond what each Classifier
// privately maintains (and each Classifier guards its own state).
type Detector struct {
	in          <-chan domain.AuditRow
	classifiers []Classifier
	sink        AlertSink
	log         *slog.Logger
	workers     int

	lowThreshold      float64
	mediumThreshold   float64
	highThreshold     float64
	criticalThreshold float64
}

// Config holds the alert-severity thresholds (spec.md §4.8: "a score
// above low threshold raises an alert record").
type Config struct {
	Workers           int
	LowThreshold      float64
	MediumThreshold   float64
	HighThreshold     float64
	CriticalThreshold float64
}

// DefaultConfig returns the spec's default thresholds.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		LowThreshold:      0.5,
		MediumThreshold:   0.7,
		HighThreshold:     0.85,
		CriticalThreshold: 0.95,
	}
}

// New creates a Detector reading from in and dispatching alerts to sink.
func New(in <-chan domain.AuditRow, classifiers []Classifier, sink AlertSink, cfg Config, log *slog.Logger) *Detector {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Detector{
		in:                in,
		classifiers:       classifiers,
		sink:              sink,
		log:               log,
		workers:           workers,
		lowThreshold:      cfg.LowThreshold,
		mediumThreshold:   cfg.MediumThreshold,
		highThreshold:     cfg.HighThreshold,
		criticalThreshold: cfg.CriticalThreshold,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled or the
// input channel is closed.
func (d *Detector) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < d.workers; i++ {
		go func() {
			d.worker(ctx)
			done <- struct{}{}
		}()
	}
	for i := 0; i < d.workers; i++ {
		<-done
	}
}

func (d *Detector) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row, ok := <-d.in:
			if !ok {
				return
			}
			d.classify(ctx, row)
		}
	}
}

func (d *Detector) classify(ctx context.Context, row domain.AuditRow) {
	for _, c := range d.classifiers {
		isAnomaly, score := c.Classify(row)
		if !isAnomaly || score < d.lowThreshold {
			continue
		}
		alert := Alert{
			Classifier: c.Name(),
			Type:       c.Name(),
			Severity:   d.severityFor(score),
			Score:      score,
			AuditRowID: row.ID,
			User:       row.User,
			At:         time.Now(),
		}
		if d.sink == nil {
			continue
		}
		if err := d.sink.Raise(ctx, alert); err != nil && d.log != nil {
			d.log.Warn("failed to raise anomaly alert", "classifier", c.Name(), "qid", row.ID, "error", err)
		}
	}
}

func (d *Detector) severityFor(score float64) Severity {
	switch {
	case score >= d.criticalThreshold:
		return SeverityCritical
	case score >= d.highThreshold:
		return SeverityHigh
	case score >= d.mediumThreshold:
		return SeverityMedium
	case score >= d.lowThreshold:
		return SeverityLow
	default:
		return SeverityNone
	}
}
