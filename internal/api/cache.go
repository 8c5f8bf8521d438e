package api

import (
	"sync"
	"time"
)

// ttlCache is a small expiring map used for resolved picture URLs
type ttlCache struct {
	data map[string]cacheEntry
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	value      string
	expiration time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		data: make(map[string]cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *ttlCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || c.now().After(entry.expiration) {
		return "", false
	}

	return entry.value, true
}

func (c *ttlCache) set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Prune on write; the cache only grows with user clicks.
	for k, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, k)
		}
	}

	c.data[key] = cacheEntry{
		value:      value,
		expiration: now.Add(c.ttl),
	}
}

func (c *ttlCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
