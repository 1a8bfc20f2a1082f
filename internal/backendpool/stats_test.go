package backendpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_BeginEndQuery(t *testing.T) {
	s := &Stats{Alias: "db1"}

	s.BeginQuery()
	assert.Equal(t, int64(1), s.ActiveQueries())
	assert.Equal(t, int64(1), s.TotalQueries())

	s.EndQuery(42, false)
	assert.Equal(t, int64(0), s.ActiveQueries())
	assert.Equal(t, int64(42), s.TotalTimeMs())
	assert.Equal(t, int64(0), s.Errors())
	assert.InDelta(t, 42.0, s.AvgTimeMs(), 0.0001)
}

func TestStats_ErrorRate(t *testing.T) {
	s := &Stats{Alias: "db1"}

	s.BeginQuery()
	s.EndQuery(10, false)
	s.BeginQuery()
	s.EndQuery(10, true)

	assert.InDelta(t, 0.5, s.ErrorRate(), 0.0001)
	assert.False(t, s.LastErrorAt().IsZero())
}

func TestStats_ErrorRate_NoQueries(t *testing.T) {
	s := &Stats{Alias: "db1"}
	assert.Equal(t, 0.0, s.ErrorRate())
	assert.Equal(t, 0.0, s.AvgTimeMs())
}
