package anomaly

import (
	"math"
	"sync"
)

// rollingStats is an online (Welford's algorithm) mean/variance
// accumulator: O(1) per-sample update, no retained history. This is the
// "stdlib-only rolling statistics" referenced in DESIGN.md — sufficient
// for a z-score classifier without a model-serving dependency.
type rollingStats struct {
	mu    sync.Mutex
	count int64
	mean  float64
	m2    float64
}

// Add folds x into the running mean/variance.
func (s *rollingStats) Add(x float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	delta := x - s.mean
	s.mean += delta / float64(s.count)
	delta2 := x - s.mean
	s.m2 += delta * delta2
}

// Samples returns how many observations have been folded in.
func (s *rollingStats) Samples() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// stddevLocked returns the population standard deviation. Caller must hold
// s.mu.
func (s *rollingStats) stddevLocked() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.count))
}

// ZScore reports how many standard deviations x is from the running
// mean. Returns 0 if there is no meaningful spread yet.
func (s *rollingStats) ZScore(x float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd := s.stddevLocked()
	if sd == 0 {
		return 0
	}
	return (x - s.mean) / sd
}

// keyedStats is a mutex-guarded map of rollingStats, one per classifier
// key (e.g. username, query hash) — the same "shard-per-lock"-adjacent
// discipline as resultcache.Cache, sized down to a single lock since
// contention here is far lower than the hot query path.
type keyedStats struct {
	mu    sync.Mutex
	byKey map[string]*rollingStats
}

func newKeyedStats() *keyedStats {
	return &keyedStats{byKey: make(map[string]*rollingStats)}
}

func (k *keyedStats) get(key string) *rollingStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.byKey[key]
	if !ok {
		s = &rollingStats{}
		k.byKey[key] = s
	}
	return s
}

// zscoreToProbability squashes an absolute z-score into a [0,1] anomaly
// score: 0 at or below minZ, approaching 1 as absZ grows, via a logistic
// curve shifted so it starts at zero instead of 0.5 — a simple,
// dependency-free monotonic mapping.
func zscoreToProbability(absZ, minZ float64) float64 {
	x := absZ - minZ
	if x <= 0 {
		return 0
	}
	sigmoid := 1 / (1 + math.Exp(-x))
	return 2 * (sigmoid - 0.5)
}
