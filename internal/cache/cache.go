// Package cache provides a TTL-bounded, size-limited in-memory cache. It is
// an explicitly constructed component, never a process-wide singleton; the
// core uses it for resolved secret handles and gateway probe results.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     string
	createdAt time.Time
}

// Cache expires entries after a TTL and evicts the oldest entry when the
// capacity is exceeded. Safe for concurrent use via a single mutex; traffic
// is low enough that finer locking buys nothing.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	nowFunc    func() time.Time
}

const (
	maxTTL        = 60 * time.Second
	maxCapacity   = 100
	defaultTTL    = 30 * time.Second
	defaultMaxLen = 64
)

// New creates a Cache. TTL is capped at 60s and capacity at 100 entries;
// zero values select the defaults.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxLen
	}
	if maxEntries > maxCapacity {
		maxEntries = maxCapacity
	}
	return &Cache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

// Get returns a cached value if present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.nowFunc().Sub(e.createdAt) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores a value, pruning expired entries first and evicting the oldest
// entry when the cache is full.
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &entry{value: value, createdAt: now}
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the entry with the earliest createdAt. Caller must
// hold c.mu.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.createdAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
