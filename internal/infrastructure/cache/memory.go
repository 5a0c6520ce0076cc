package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/nutriplan/backend/internal/domain"
)

// DefaultMaxEntries bounds the cache when no capacity is configured
const DefaultMaxEntries = 10000

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	key        string
	value      interface{}
	createdAt  time.Time
	expiration time.Time
}

// MemoryCache is a thread-safe, size-bounded LRU cache with per-entry TTL.
// Values are stored as given; callers must only store immutable values.
type MemoryCache struct {
	mutex      sync.Mutex
	maxEntries int
	order      *list.List // front = most recently used
	data       map[string]*list.Element
	now        func() time.Time

	hits, misses, evictions int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new in-memory cache holding at most maxEntries items
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	cache := &MemoryCache{
		maxEntries: maxEntries,
		order:      list.New(),
		data:       make(map[string]*list.Element),
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	// Start cleanup goroutine to remove expired entries every minute
	go cache.cleanupExpired(time.Minute)

	return cache
}

// Get retrieves a value from the cache and marks it most recently used
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elem, exists := c.data[key]
	if !exists {
		c.misses++
		return nil, domain.ErrCacheMiss
	}

	item := elem.Value.(*cacheItem)
	if !c.now().Before(item.expiration) {
		c.removeElement(elem)
		c.misses++
		return nil, domain.ErrCacheMiss
	}

	c.order.MoveToFront(elem)
	c.hits++
	return item.value, nil
}

// Set stores a value in the cache with TTL, evicting the least recently used
// entry once the capacity is reached
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	item := &cacheItem{
		key:        key,
		value:      value,
		createdAt:  now,
		expiration: now.Add(ttl),
	}

	if elem, exists := c.data[key]; exists {
		// Swap the whole item so readers never see a half-updated entry
		elem.Value = item
		c.order.MoveToFront(elem)
		return nil
	}

	c.data[key] = c.order.PushFront(item)

	for c.order.Len() > c.maxEntries {
		c.removeElement(c.order.Back())
		c.evictions++
	}

	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if elem, exists := c.data[key]; exists {
		c.removeElement(elem)
	}
	return nil
}

// removeElement must be called with the mutex held
func (c *MemoryCache) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem)
	delete(c.data, item.key)
	c.order.Remove(elem)
}

// cleanupExpired removes expired entries from the cache periodically
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *MemoryCache) purgeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*cacheItem).expiration) {
			c.removeElement(elem)
		}
		elem = prev
	}
}

// Close stops the cleanup goroutine. The cache stays usable.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Stats returns a snapshot of the cache counters. Expired entries that
// have not been purged yet are left out.
func (c *MemoryCache) Stats() domain.CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	stats := domain.CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	var oldest time.Time
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem)
		if !now.Before(item.expiration) {
			continue
		}
		stats.Entries++
		if oldest.IsZero() || item.createdAt.Before(oldest) {
			oldest = item.createdAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestEntryAge = now.Sub(oldest)
	}
	return stats
}
