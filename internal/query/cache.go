package query

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the TTL+LRU query-result cache (§4.5.4), built on
// hashicorp/golang-lru/v2's fixed-capacity LRU and a per-entry expiry
// check on read.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	lru *lru.Cache[string, cacheEntry]

	hits             int64
	misses           int64
	evictions        int64
	suppressEviction bool
}

type cacheEntry struct {
	value     Response
	expiresAt time.Time
}

// NewCache creates an empty cache with the given capacity and per-entry TTL.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	c := &Cache{ttl: ttl}
	inner, _ := lru.NewWithEvict[string, cacheEntry](capacity, func(key string, value cacheEntry) {
		if !c.suppressEviction {
			c.evictions++
		}
	})
	c.lru = inner
	return c
}

// Get returns the cached value for key if present and not expired, moving it
// to MRU position. The bool reports whether the value was found and fresh.
func (c *Cache) Get(key string, now time.Time) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return Response{}, false
	}
	if now.After(entry.expiresAt) {
		c.suppressEviction = true
		c.lru.Remove(key)
		c.suppressEviction = false
		c.misses++
		return Response{}, false
	}
	c.hits++
	return entry.value, true
}

// Put inserts or replaces the cached value for key, evicting the LRU entry
// if the cache is at capacity.
func (c *Cache) Put(key string, value Response, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cacheEntry{value: value, expiresAt: now.Add(c.ttl)})
}

// Clear empties the cache without resetting hit/miss/eviction counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressEviction = true
	c.lru.Purge()
	c.suppressEviction = false
}

// Stats is the cache's observability snapshot.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	CurrentSize int
}

// Stats returns the current counters and size.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, CurrentSize: c.lru.Len()}
}
