package classifier

import (
	"sync"
	"time"
)

// chainCache is a short-TTL, single-writer/many-reader cache of resolved
// classifier provider chains keyed by userID, avoiding a preference-store
// read on every message.
type chainCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	chain     []string
	expiresAt time.Time
}

func newChainCache(ttl time.Duration) *chainCache {
	return &chainCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *chainCache) get(userID string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[userID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.chain, true
}

func (c *chainCache) set(userID string, chain []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{chain: chain, expiresAt: time.Now().Add(c.ttl)}
}
