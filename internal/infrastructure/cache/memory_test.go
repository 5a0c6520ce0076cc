package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, maxEntries int) (*MemoryCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(maxEntries)
	c.now = clock.Now
	t.Cleanup(c.Close)
	return c, clock
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache, clock := newTestCache(t, 10)
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value interface{}
		ttl   time.Duration
	}{
		{name: "store and retrieve string", key: "test-key-1", value: "test-value", ttl: time.Minute},
		{name: "store and retrieve provider result", key: "test-key-2", value: domain.OKResult(domain.SourceUSDA, nil, 3, 0), ttl: time.Minute},
		{name: "store with short TTL", key: "test-key-3", value: "expires-soon", ttl: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, cache.Set(ctx, tt.key, tt.value, tt.ttl))

			got, err := cache.Get(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}

	t.Run("entries expire after their TTL", func(t *testing.T) {
		clock.Advance(2 * time.Second)

		_, err := cache.Get(ctx, "test-key-3")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)

		_, err = cache.Get(ctx, "test-key-1")
		assert.NoError(t, err)
	})
}

func TestMemoryCache_Get_CacheMiss(t *testing.T) {
	cache, _ := newTestCache(t, 10)

	_, err := cache.Get(context.Background(), "non-existent-key")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache, _ := newTestCache(t, 3)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Set(ctx, k, k, time.Minute))
	}

	// Touch "a" so "b" becomes the least recently used
	_, err := cache.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "d", "d", time.Minute))

	assert.Equal(t, 3, cache.Stats().Entries)
	_, err = cache.Get(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	for _, k := range []string{"a", "c", "d"} {
		_, err := cache.Get(ctx, k)
		assert.NoError(t, err, "key %s", k)
	}
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestMemoryCache_ReplaceKeepsSize(t *testing.T) {
	cache, clock := newTestCache(t, 2)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "old", time.Second))
	require.NoError(t, cache.Set(ctx, "k", "new", time.Minute))
	assert.Equal(t, 1, cache.Stats().Entries)

	// The replacement also carries the new TTL
	clock.Advance(10 * time.Second)
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestMemoryCache_Delete(t *testing.T) {
	cache, _ := newTestCache(t, 10)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "delete-test", "value", time.Minute))
	require.NoError(t, cache.Delete(ctx, "delete-test"))

	_, err := cache.Get(ctx, "delete-test")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	// Deleting a missing key is not an error
	assert.NoError(t, cache.Delete(ctx, "never-set"))
}

func TestMemoryCache_PurgeExpired(t *testing.T) {
	cache, clock := newTestCache(t, 10)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short", 1, time.Second))
	require.NoError(t, cache.Set(ctx, "long", 2, time.Hour))

	clock.Advance(time.Minute)
	cache.purgeExpired()

	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestMemoryCache_Stats(t *testing.T) {
	cache, _ := newTestCache(t, 10)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	_, _ = cache.Get(ctx, "k")
	_, _ = cache.Get(ctx, "missing")

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestMemoryCache_StatsOldestEntryAge(t *testing.T) {
	cache, clock := newTestCache(t, 10)
	ctx := context.Background()

	assert.Zero(t, cache.Stats().OldestEntryAge, "empty cache")

	require.NoError(t, cache.Set(ctx, "old", 1, time.Minute))
	clock.Advance(20 * time.Second)
	require.NoError(t, cache.Set(ctx, "new", 2, time.Hour))
	clock.Advance(10 * time.Second)

	// Reading the old entry makes it most recent but keeps its age
	_, err := cache.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cache.Stats().OldestEntryAge)

	// Replacing a value restarts its age
	require.NoError(t, cache.Set(ctx, "old", 3, time.Minute))
	assert.Equal(t, 10*time.Second, cache.Stats().OldestEntryAge)

	// Expired entries no longer count
	clock.Advance(2 * time.Minute)
	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 130*time.Second, stats.OldestEntryAge)
}

func TestMemoryCache_Concurrent(t *testing.T) {
	cache := NewMemoryCache(16)
	defer cache.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", id%8)
			value := domain.OKResult(domain.SourceUSDA, nil, id, 0)
			assert.NoError(t, cache.Set(ctx, key, value, time.Minute))

			got, err := cache.Get(ctx, key)
			if err == nil {
				// Whatever value is seen must be a whole ProviderResult
				_, ok := got.(domain.ProviderResult)
				assert.True(t, ok)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Entries, 16)
}
