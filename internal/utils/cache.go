package utils

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem wraps cached data with its expiry
type CacheItem struct {
	Data      any
	ExpiresAt time.Time
}

// TTLCache is a bounded LRU whose entries also expire.
type TTLCache struct {
	lruCache *lru.Cache[string, CacheItem]
	now      func() time.Time
}

var (
	cacheInstance *TTLCache
	cacheOnce     sync.Once
)

// GetCache returns the process-wide cache
func GetCache() *TTLCache {
	cacheOnce.Do(func() {
		cacheInstance = NewTTLCache(1000)
	})
	return cacheInstance
}

// NewTTLCache builds a cache holding at most size entries
func NewTTLCache(size int) *TTLCache {
	if size <= 0 {
		size = 1
	}
	// lru.New only fails for non-positive sizes
	l, _ := lru.New[string, CacheItem](size)
	return &TTLCache{lruCache: l, now: time.Now}
}

// Set stores data for ttl
func (c *TTLCache) Set(key string, data any, ttl time.Duration) {
	c.lruCache.Add(key, CacheItem{
		Data:      data,
		ExpiresAt: c.now().Add(ttl),
	})
}

// Get returns the cached value, or nil when missing or expired
func (c *TTLCache) Get(key string) any {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return nil
	}
	if c.now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return nil
	}
	return val.Data
}

// Delete removes key
func (c *TTLCache) Delete(key string) {
	c.lruCache.Remove(key)
}

// Len counts entries, expired ones included
func (c *TTLCache) Len() int {
	return c.lruCache.Len()
}
