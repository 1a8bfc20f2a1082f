package backendpool

import (
	"sync"
	"time"
)

// Stats tracks the rolling, in-memory counters SPEC_FULL.md §10 adds for
// router scoring and autoscaling: active/total queries, cumulative time,
// errors, and when the last error happened. Grounded on the Python
// original's per-server metrics dict in
// original_source/backend/app/autoscaling/scaler.py, reshaped into a
// mutex-guarded struct instead of a dict-of-dicts.
type Stats struct {
	Alias string

	mu           sync.Mutex
	activeQuery  int64
	totalQuery   int64
	totalTimeMs  int64
	errors       int64
	lastErrorAt  time.Time
}

// BeginQuery marks the start of an in-flight query against this backend.
func (s *Stats) BeginQuery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeQuery++
	s.totalQuery++
}

// EndQuery marks completion, recording execution time and, if failed, the
// error count (the numerator of ErrorRate) and the last-error timestamp.
func (s *Stats) EndQuery(durationMs int64, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeQuery > 0 {
		s.activeQuery--
	}
	s.totalTimeMs += durationMs
	if failed {
		s.errors++
		s.lastErrorAt = time.Now()
	}
}

// snapshot copies the counters under lock into a detached value.
func (s *Stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Alias:       s.Alias,
		activeQuery: s.activeQuery,
		totalQuery:  s.totalQuery,
		totalTimeMs: s.totalTimeMs,
		errors:      s.errors,
		lastErrorAt: s.lastErrorAt,
	}
}

// ActiveQueries returns the current in-flight query count.
func (s *Stats) ActiveQueries() int64 { return s.snapshotField(func(c *Stats) int64 { return c.activeQuery }) }

// TotalQueries returns the lifetime query count.
func (s *Stats) TotalQueries() int64 { return s.snapshotField(func(c *Stats) int64 { return c.totalQuery }) }

// TotalTimeMs returns cumulative execution time across all queries.
func (s *Stats) TotalTimeMs() int64 { return s.snapshotField(func(c *Stats) int64 { return c.totalTimeMs }) }

// Errors returns the lifetime error count.
func (s *Stats) Errors() int64 { return s.snapshotField(func(c *Stats) int64 { return c.errors }) }

// LastErrorAt returns the timestamp of the most recent query error, or the
// zero time if none occurred.
func (s *Stats) LastErrorAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErrorAt
}

// ErrorRate returns errors/totalQuery as a [0,1] fraction, or 0 if no
// queries have run yet.
func (s *Stats) ErrorRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalQuery == 0 {
		return 0
	}
	return float64(s.errors) / float64(s.totalQuery)
}

// AvgTimeMs returns totalTimeMs/totalQuery, or 0 if no queries have run yet.
func (s *Stats) AvgTimeMs() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalQuery == 0 {
		return 0
	}
	return float64(s.totalTimeMs) / float64(s.totalQuery)
}

func (s *Stats) snapshotField(f func(*Stats) int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s)
}
