// Package router selects a backend or backend group for a request and
// produces the ExecutionPlan the executor runs (spec.md §4.2).
package router

import (
	"time"

	"github.com/sqlproxy/queryplane/internal/backendpool"
)

// recencyErrorWindow is the lookback used for the "errored in the last 5
// minutes" scoring penalty.
const recencyErrorWindow = 5 * time.Minute

// recencyErrorBonus is added to a backend's score if it has errored within
// recencyErrorWindow, nudging the router away from a backend that just
// failed even if its cumulative error rate is still low.
const recencyErrorBonus = 20.0

// candidate pairs a backend server with its live statistics for scoring.
type candidate struct {
	alias   string
	weight  float64
	order   int
	stats   *backendpool.Stats
}

// score computes spec.md §4.2's
// score = 10*in_use + 5*recent_error_rate(%) + recency_bonus_if_errored_last_5_min
func score(c candidate, now time.Time) float64 {
	s := 10*float64(c.stats.ActiveQueries()) + 5*c.stats.ErrorRate()*100
	if last := c.stats.LastErrorAt(); !last.IsZero() && now.Sub(last) <= recencyErrorWindow {
		s += recencyErrorBonus
	}
	return s
}

// rank orders candidates by ascending score, ties broken by descending
// weight then by original (registration) order — spec.md §4.2: "Lowest
// score wins; ties broken by weight then stable order."
func rank(candidates []candidate, now time.Time) []candidate {
	scored := make([]struct {
		candidate
		score float64
	}, len(candidates))
	for i, c := range candidates {
		scored[i].candidate = c
		scored[i].score = score(c, now)
	}

	// Simple insertion sort: candidate counts per group are small (single
	// digits to low tens), so an O(n^2) stable sort keeps the comparator
	// trivial to read and verify against the spec's tie-break rule.
	for i := 1; i < len(scored); i++ {
		j := i
		for j > 0 && less(scored[j], scored[j-1]) {
			scored[j], scored[j-1] = scored[j-1], scored[j]
			j--
		}
	}

	out := make([]candidate, len(scored))
	for i, s := range scored {
		out[i] = s.candidate
	}
	return out
}

func less(a, b struct {
	candidate
	score float64
}) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	return a.order < b.order
}
