// Package resultcache memoises SELECT-class results keyed by fingerprint,
// guaranteeing at-most-one concurrent build per fingerprint (spec.md
// §4.7).
package resultcache

import (
	"context"
	"sync"
	"time"

	"github.com/sqlproxy/queryplane/internal/domain"
)

const shardCount = 32

// shard is one partition of the cache's backing map, each guarded by its
// own mutex (spec.md §5's "shard-per-lock" discipline — splitting one
// global lock into N independent ones so unrelated fingerprints never
// contend).
type shard struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
}

// Cache is the ResultCache: get/put/build_or_wait over a sharded map,
// with a single flightGroup coordinating concurrent builds across all
// shards.
type Cache struct {
	shards     [shardCount]*shard
	flight     *flightGroup
	waitTO     time.Duration
	maxEntries int
}

// New creates a Cache. waitTimeout bounds how long a waiter blocks on
// another goroutine's in-flight build (spec.md §4.7 default: 10s).
func New(waitTimeout time.Duration, maxEntries int) *Cache {
	c := &Cache{flight: newFlightGroup(), waitTO: waitTimeout, maxEntries: maxEntries}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]domain.CacheEntry)}
	}
	return c
}

func (c *Cache) shardFor(fp string) *shard {
	var h uint32
	for i := 0; i < len(fp); i++ {
		h = h*31 + uint32(fp[i])
	}
	return c.shards[h%shardCount]
}

// Get returns the entry for fp and whether it was a hit. An entry past
// its TTL is evicted lazily and reported as a miss (spec.md §4.7:
// "Eviction: lazy on read... plus periodic sweep").
func (c *Cache) Get(fp string) (domain.CacheEntry, bool) {
	sh := c.shardFor(fp)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[fp]
	if !ok {
		return domain.CacheEntry{}, false
	}
	if entry.Expired(time.Now()) {
		delete(sh.entries, fp)
		return domain.CacheEntry{}, false
	}
	return entry, true
}

// Put stores value under fp with the given ttl. Never call with error
// results or non-SELECT queries (spec.md §4.7: "Never cache error
// results. Never cache non-SELECT queries" — enforced by the caller,
// since Cache has no notion of query type).
func (c *Cache) Put(fp string, entry domain.CacheEntry, ttl time.Duration) {
	now := time.Now()
	entry.ExpiresAt = now.Add(ttl)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	sh := c.shardFor(fp)
	sh.mu.Lock()
	if c.maxEntries > 0 && len(sh.entries) >= c.maxEntries/shardCount {
		evictOneExpiredOrOldest(sh)
	}
	sh.entries[fp] = entry
	sh.mu.Unlock()
}

// evictOneExpiredOrOldest makes room in a full shard: it prefers removing
// an already-expired entry, falling back to the oldest by CreatedAt. Must
// be called with sh.mu held.
func evictOneExpiredOrOldest(sh *shard) {
	now := time.Now()
	var oldestKey string
	var oldestAt time.Time
	first := true
	for fp, e := range sh.entries {
		if e.Expired(now) {
			delete(sh.entries, fp)
			return
		}
		if first || e.CreatedAt.Before(oldestAt) {
			oldestKey, oldestAt = fp, e.CreatedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(sh.entries, oldestKey)
	}
}

// BuildFunc produces a fresh value for a cache miss.
type BuildFunc func(ctx context.Context) (domain.CacheEntry, error)

// BuildOrWait implements spec.md §4.7's build_or_wait: on a hit, returns
// immediately. On a miss, if another caller is already building this fp,
// this call blocks (bounded by the cache's wait timeout) for that
// builder's result; on timeout it falls through and runs build itself
// (unsupervised — not coordinated with the other builder, per spec:
// "timeouts fall through to unsupervised execution"). If this call is
// the first to miss, it becomes the builder, and on success populates the
// cache with ttl for the next caller.
func (c *Cache) BuildOrWait(ctx context.Context, fp string, ttl time.Duration, build BuildFunc) (domain.CacheEntry, error) {
	if entry, ok := c.Get(fp); ok {
		return entry, nil
	}

	result, err := c.flight.waitOrBuild(fp, c.waitTO, func() (domainResult, error) {
		entry, err := build(ctx)
		if err != nil {
			return domainResult{}, err
		}
		c.Put(fp, entry, ttl)
		return domainResult{Columns: entry.Columns, Rows: entry.Rows}, nil
	})

	if err == ErrWaitTimeout {
		entry, buildErr := build(ctx)
		if buildErr != nil {
			return domain.CacheEntry{}, buildErr
		}
		return entry, nil
	}
	if err != nil {
		return domain.CacheEntry{}, err
	}

	if entry, ok := c.Get(fp); ok {
		return entry, nil
	}
	return domain.CacheEntry{Fingerprint: fp, Columns: result.Columns, Rows: result.Rows}, nil
}

// Sweep removes every expired entry across all shards once per interval
// until ctx is cancelled, the same background-worker shape as
// internal/backendpool.Autoscaler.Run and internal/policy.PolicyEngine.Run.
func (c *Cache) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce()
		}
	}
}

func (c *Cache) sweepOnce() {
	now := time.Now()
	for _, sh := range c.shards {
		sh.mu.Lock()
		for fp, entry := range sh.entries {
			if entry.Expired(now) {
				delete(sh.entries, fp)
			}
		}
		sh.mu.Unlock()
	}
}

// Len returns the approximate total entry count across all shards, for
// metrics/health reporting.
func (c *Cache) Len() int {
	total := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}
