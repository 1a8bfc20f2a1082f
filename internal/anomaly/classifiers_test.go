package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sqlproxy/queryplane/internal/domain"
)

func rowAt(user string, t time.Time, execMs int64, rows int) domain.AuditRow {
	return domain.AuditRow{
		ID:        domain.ID("q"),
		User:      user,
		QueryHash: "h1",
		QueryType: "SELECT",
		StartedAt: t,
		ExecMs:    execMs,
		Rows:      rows,
	}
}

func TestExecutionTimeClassifier_NoSignalBeforeMinSamples(t *testing.T) {
	c := NewExecutionTimeClassifier()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < minSamplesForSignal-1; i++ {
		isAnomaly, score := c.Classify(rowAt("alice", base, 100, 10))
		assert.False(t, isAnomaly)
		assert.Zero(t, score)
	}
}

func TestExecutionTimeClassifier_FlagsOutlierAfterBaseline(t *testing.T) {
	c := NewExecutionTimeClassifier()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < minSamplesForSignal+5; i++ {
		c.Classify(rowAt("alice", base, int64(90+i%20), 10))
	}
	isAnomaly, score := c.Classify(rowAt("alice", base, 100_000, 10))
	assert.True(t, isAnomaly)
	assert.Greater(t, score, 0.0)
}

func TestVolumeClassifier_FlagsBurst(t *testing.T) {
	c := NewVolumeClassifier()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	// establish a baseline of 1-3 queries/minute (varied, so the rolling
	// stddev is non-zero) across many minutes
	for i := 0; i < minSamplesForSignal+5; i++ {
		minute := base.Add(time.Duration(i) * time.Minute)
		for n := 0; n < (i%3)+1; n++ {
			c.Classify(rowAt("alice", minute, 10, 1))
		}
	}
	burstMinute := base.Add(time.Duration(minSamplesForSignal+10) * time.Minute)
	var lastAnomaly bool
	var lastScore float64
	for i := 0; i < 50; i++ {
		lastAnomaly, lastScore = c.Classify(rowAt("alice", burstMinute, 10, 1))
	}
	assert.True(t, lastAnomaly)
	assert.Greater(t, lastScore, 0.0)
}

func TestTemporalClassifier_FlagsUnusualHour(t *testing.T) {
	c := NewTemporalClassifier()
	morning := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < minSamplesForSignal+5; i++ {
		c.Classify(rowAt("alice", morning.Add(time.Duration(i)*24*time.Hour), 10, 1))
	}
	midnight := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	isAnomaly, score := c.Classify(rowAt("alice", midnight, 10, 1))
	assert.True(t, isAnomaly)
	assert.Greater(t, score, 0.0)
}

func TestAccessPatternClassifier_FlagsNewServerAfterBaseline(t *testing.T) {
	c := NewAccessPatternClassifier()
	row := domain.AuditRow{User: "alice", ServerAlias: "db-primary"}
	for i := 0; i < minSamplesForSignal+1; i++ {
		c.Classify(row)
	}
	newServerRow := domain.AuditRow{User: "alice", ServerAlias: "db-shadow-new"}
	isAnomaly, score := c.Classify(newServerRow)
	assert.True(t, isAnomaly)
	assert.Equal(t, 0.6, score)
}

func TestAccessPatternClassifier_NoFlagForRepeatedServer(t *testing.T) {
	c := NewAccessPatternClassifier()
	row := domain.AuditRow{User: "alice", ServerAlias: "db-primary"}
	for i := 0; i < minSamplesForSignal+5; i++ {
		isAnomaly, _ := c.Classify(row)
		assert.False(t, isAnomaly)
	}
}

func TestQueryContentClassifier_FlagsRareQueryType(t *testing.T) {
	c := NewQueryContentClassifier()
	row := domain.AuditRow{User: "alice", QueryType: "SELECT"}
	for i := 0; i < minSamplesForSignal+5; i++ {
		c.Classify(row)
	}
	ddlRow := domain.AuditRow{User: "alice", QueryType: "DDL"}
	isAnomaly, score := c.Classify(ddlRow)
	assert.True(t, isAnomaly)
	assert.Greater(t, score, 0.0)
}

func TestUserBehaviourClassifier_FlagsLargeResultSet(t *testing.T) {
	c := NewUserBehaviourClassifier()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < minSamplesForSignal+5; i++ {
		c.Classify(rowAt("alice", base, 10, 3+i%5))
	}
	isAnomaly, score := c.Classify(rowAt("alice", base, 10, 1_000_000))
	assert.True(t, isAnomaly)
	assert.Greater(t, score, 0.0)
}
