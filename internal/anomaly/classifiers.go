package anomaly

import (
	"sync"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// minSamplesForSignal gates every classifier below: it will not call a
// row anomalous until it has accumulated at least this many prior
// observations for the relevant key, matching spec.md §4.8's "minimum
// sample count" gate on going from cold-start noise to a real signal.
const minSamplesForSignal = 30

// minZScore is the smallest |z| a classifier will ever report as
// anomalous, regardless of accumulated sample count.
const minZScore = 2.5

// VolumeClassifier flags a user issuing far more queries per minute than
// their own historical rate.
type VolumeClassifier struct {
	byUser *keyedStats

	mu      sync.Mutex
	windows map[string]*minuteWindow
}

type minuteWindow struct {
	minute int64
	count  int64
}

// NewVolumeClassifier creates a VolumeClassifier.
func NewVolumeClassifier() *VolumeClassifier {
	return &VolumeClassifier{byUser: newKeyedStats(), windows: make(map[string]*minuteWindow)}
}

func (c *VolumeClassifier) Name() string { return "query_volume" }

func (c *VolumeClassifier) Classify(row domain.AuditRow) (bool, float64) {
	minute := row.StartedAt.Unix() / 60

	c.mu.Lock()
	w, ok := c.windows[row.User]
	if !ok {
		w = &minuteWindow{minute: minute}
		c.windows[row.User] = w
	}
	if w.minute != minute {
		stats := c.byUser.get(row.User)
		if w.count > 0 {
			stats.Add(float64(w.count))
		}
		w.minute = minute
		w.count = 0
	}
	w.count++
	count := w.count
	c.mu.Unlock()

	stats := c.byUser.get(row.User)
	if stats.Samples() < minSamplesForSignal {
		return false, 0
	}
	z := stats.ZScore(float64(count))
	score := zscoreToProbability(z, minZScore) // only high side: bursts, not lulls
	return score > 0 && z > 0, score
}

// ExecutionTimeClassifier flags a query whose execution time is a
// statistical outlier relative to other executions of the same query
// hash.
type ExecutionTimeClassifier struct {
	byQueryHash *keyedStats
}

func NewExecutionTimeClassifier() *ExecutionTimeClassifier {
	return &ExecutionTimeClassifier{byQueryHash: newKeyedStats()}
}

func (c *ExecutionTimeClassifier) Name() string { return "execution_time" }

func (c *ExecutionTimeClassifier) Classify(row domain.AuditRow) (bool, float64) {
	stats := c.byQueryHash.get(row.QueryHash)
	defer stats.Add(float64(row.ExecMs))

	if stats.Samples() < minSamplesForSignal {
		return false, 0
	}
	z := stats.ZScore(float64(row.ExecMs))
	score := zscoreToProbability(absFloat(z), minZScore)
	return score > 0, score
}

// TemporalClassifier flags a query issued at an hour-of-day this user
// almost never queries at.
type TemporalClassifier struct {
	mu      sync.Mutex
	byUser  map[string]*hourHistogram
}

type hourHistogram struct {
	counts [24]int64
	total  int64
}

func NewTemporalClassifier() *TemporalClassifier {
	return &TemporalClassifier{byUser: make(map[string]*hourHistogram)}
}

func (c *TemporalClassifier) Name() string { return "temporal_pattern" }

func (c *TemporalClassifier) Classify(row domain.AuditRow) (bool, float64) {
	hour := row.StartedAt.Hour()

	c.mu.Lock()
	h, ok := c.byUser[row.User]
	if !ok {
		h = &hourHistogram{}
		c.byUser[row.User] = h
	}
	priorTotal := h.total
	priorHourCount := h.counts[hour]
	h.counts[hour]++
	h.total++
	c.mu.Unlock()

	if priorTotal < minSamplesForSignal {
		return false, 0
	}
	frequency := float64(priorHourCount) / float64(priorTotal)
	// A near-zero historical frequency for this hour is the signal; scale
	// it so "never seen at this hour before" approaches score 1.
	score := 1 - frequency*24
	if score < 0 {
		score = 0
	}
	return score >= 0.5, score
}

// UserBehaviourClassifier flags a result set size that is a statistical
// outlier relative to this user's usual row counts.
type UserBehaviourClassifier struct {
	byUser *keyedStats
}

func NewUserBehaviourClassifier() *UserBehaviourClassifier {
	return &UserBehaviourClassifier{byUser: newKeyedStats()}
}

func (c *UserBehaviourClassifier) Name() string { return "user_behaviour" }

func (c *UserBehaviourClassifier) Classify(row domain.AuditRow) (bool, float64) {
	stats := c.byUser.get(row.User)
	defer stats.Add(float64(row.Rows))

	if stats.Samples() < minSamplesForSignal {
		return false, 0
	}
	z := stats.ZScore(float64(row.Rows))
	score := zscoreToProbability(absFloat(z), minZScore)
	return score > 0 && z > 0, score // only unusually large pulls, not small ones
}

// AccessPatternClassifier flags a user querying a backend server alias
// they have never touched before, once their baseline is established.
type AccessPatternClassifier struct {
	mu       sync.Mutex
	byUser   map[string]map[string]bool
	seenAll  map[string]int64
}

func NewAccessPatternClassifier() *AccessPatternClassifier {
	return &AccessPatternClassifier{byUser: make(map[string]map[string]bool), seenAll: make(map[string]int64)}
}

func (c *AccessPatternClassifier) Name() string { return "access_pattern" }

func (c *AccessPatternClassifier) Classify(row domain.AuditRow) (bool, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	aliases, ok := c.byUser[row.User]
	if !ok {
		aliases = make(map[string]bool)
		c.byUser[row.User] = aliases
	}
	total := c.seenAll[row.User]
	c.seenAll[row.User] = total + 1

	seen := aliases[row.ServerAlias]
	aliases[row.ServerAlias] = true

	if total < minSamplesForSignal || seen {
		return false, 0
	}
	return true, 0.6
}

// QueryContentClassifier flags rarely-seen query types for a user (e.g.
// a user who has only ever run SELECTs suddenly running DDL).
type QueryContentClassifier struct {
	mu     sync.Mutex
	byUser map[string]map[string]int64
	totals map[string]int64
}

func NewQueryContentClassifier() *QueryContentClassifier {
	return &QueryContentClassifier{byUser: make(map[string]map[string]int64), totals: make(map[string]int64)}
}

func (c *QueryContentClassifier) Name() string { return "query_content" }

func (c *QueryContentClassifier) Classify(row domain.AuditRow) (bool, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byType, ok := c.byUser[row.User]
	if !ok {
		byType = make(map[string]int64)
		c.byUser[row.User] = byType
	}
	total := c.totals[row.User]
	priorCount := byType[row.QueryType]
	byType[row.QueryType]++
	c.totals[row.User] = total + 1

	if total < minSamplesForSignal {
		return false, 0
	}
	frequency := float64(priorCount) / float64(total)
	score := 1 - frequency*4
	if score < 0 {
		score = 0
	}
	return score >= 0.5, score
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// DefaultClassifiers returns the standard six-axis classifier set from
// spec.md §4.8.
func DefaultClassifiers() []Classifier {
	return []Classifier{
		NewVolumeClassifier(),
		NewExecutionTimeClassifier(),
		NewTemporalClassifier(),
		NewUserBehaviourClassifier(),
		NewAccessPatternClassifier(),
		NewQueryContentClassifier(),
	}
}
