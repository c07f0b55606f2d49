package metadata

import (
	"sync"
	"time"

	"github.com/jgivc/mediafetch/internal/entity"
)

type cacheEntry struct {
	resolvedAt time.Time
	result     entity.MetadataResult
}

type cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func NewCache(ttl time.Duration) *cache {
	return newCacheWithClock(ttl, time.Now)
}

func newCacheWithClock(ttl time.Duration, now func() time.Time) *cache {
	return &cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the result stored for url if it is younger than the TTL.
func (c *cache) Get(url string) (entity.MetadataResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok || c.now().Sub(e.resolvedAt) >= c.ttl {
		return entity.MetadataResult{}, false
	}

	return e.result, true
}

func (c *cache) Put(url string, result entity.MetadataResult) {
	c.mu.Lock()
	c.entries[url] = cacheEntry{resolvedAt: c.now(), result: result}
	c.mu.Unlock()
}

// Sweep drops expired entries and returns how many were removed.
func (c *cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for url, e := range c.entries {
		if now.Sub(e.resolvedAt) >= c.ttl {
			delete(c.entries, url)
			removed++
		}
	}

	return removed
}

func (c *cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
