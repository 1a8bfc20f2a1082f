package resultcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlproxy/queryplane/internal/domain"
)

func TestCache_GetMissThenPutHit(t *testing.T) {
	c := New(time.Second, 0)
	_, ok := c.Get("fp1")
	require.False(t, ok)

	c.Put("fp1", domain.CacheEntry{Fingerprint: "fp1", Columns: []string{"a"}}, time.Minute)
	entry, ok := c.Get("fp1")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, entry.Columns)
}

func TestCache_GetExpiredEntryIsMiss(t *testing.T) {
	c := New(time.Second, 0)
	c.Put("fp1", domain.CacheEntry{Fingerprint: "fp1"}, -time.Second)

	_, ok := c.Get("fp1")
	assert.False(t, ok)
}

func TestCache_BuildOrWait_OnlyOneBuildCall(t *testing.T) {
	c := New(2*time.Second, 0)
	var calls int64

	build := func(ctx context.Context) (domain.CacheEntry, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return domain.CacheEntry{Fingerprint: "fp1", Columns: []string{"x"}}, nil
	}

	results := make(chan domain.CacheEntry, 5)
	for i := 0; i < 5; i++ {
		go func() {
			entry, err := c.BuildOrWait(context.Background(), "fp1", time.Minute, build)
			require.NoError(t, err)
			results <- entry
		}()
	}

	for i := 0; i < 5; i++ {
		<-results
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestCache_BuildOrWait_FallsThroughOnTimeout(t *testing.T) {
	c := New(10*time.Millisecond, 0)
	var calls int64

	slowBuild := func(ctx context.Context) (domain.CacheEntry, error) {
		n := atomic.AddInt64(&calls, 1)
		if n == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		return domain.CacheEntry{Fingerprint: "fp1"}, nil
	}

	go func() { _, _ = c.BuildOrWait(context.Background(), "fp1", time.Minute, slowBuild) }()
	time.Sleep(20 * time.Millisecond)

	_, err := c.BuildOrWait(context.Background(), "fp1", time.Minute, slowBuild)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(2))
}

func TestCache_Sweep_RemovesExpiredEntries(t *testing.T) {
	c := New(time.Second, 0)
	c.Put("fp1", domain.CacheEntry{Fingerprint: "fp1"}, -time.Second)
	c.Put("fp2", domain.CacheEntry{Fingerprint: "fp2"}, time.Minute)

	c.sweepOnce()

	assert.Equal(t, 1, c.Len())
}
