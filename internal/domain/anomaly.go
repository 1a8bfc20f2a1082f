package domain

import "time"

// AnomalySeverity buckets an AnomalyAlert's score for operator triage.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "med"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// SeverityForScore maps a [0,1] anomaly score to a severity bucket using
// the low/med/high/critical thresholds from spec.md §4.8. Boundaries are
// inclusive on the lower end of each bucket.
func SeverityForScore(score float64) AnomalySeverity {
	switch {
	case score >= 0.9:
		return SeverityCritical
	case score >= 0.7:
		return SeverityHigh
	case score >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AnomalyType names the classifier axis that produced an alert
// (spec.md §4.8: volume, exec-time, temporal, user-behaviour,
// access-pattern, query-content).
type AnomalyType string

const (
	AnomalyVolume        AnomalyType = "query_volume"
	AnomalyExecTime      AnomalyType = "execution_time"
	AnomalyTemporal      AnomalyType = "temporal_pattern"
	AnomalyUserBehaviour AnomalyType = "user_behaviour"
	AnomalyAccessPattern AnomalyType = "access_pattern"
	AnomalyQueryContent  AnomalyType = "query_content"
)

// AnomalyAlert is a derived (never primary) record surfaced to an ops
// channel; it never participates in the request path (spec.md §3).
type AnomalyAlert struct {
	ID        ID
	Type      AnomalyType
	Severity  AnomalySeverity
	Score     float64
	AuditID   ID
	DetectedAt time.Time
	Detail    string
}
