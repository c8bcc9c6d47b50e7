package conduit

import (
	"sync"
	"time"
)

// ToolListCache is an optional cross-request cache for tool-list responses,
// keyed by upstream endpoint identity. Entries expire after a fixed TTL and
// are evicted lazily: stale entries are dropped when read, and an eviction
// pass runs on insert once the entry bound is exceeded.
type ToolListCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]toolListEntry

	now func() time.Time // overridable for tests
}

type toolListEntry struct {
	defs     []ToolDefinition
	storedAt time.Time
}

// DefaultToolListTTL is the entry lifetime when none is configured.
const DefaultToolListTTL = 5 * time.Minute

// defaultCacheMaxEntries bounds the cache when no limit is configured.
const defaultCacheMaxEntries = 128

// NewToolListCache creates a cache. Non-positive ttl or maxEntries fall
// back to the defaults.
func NewToolListCache(ttl time.Duration, maxEntries int) *ToolListCache {
	if ttl <= 0 {
		ttl = DefaultToolListTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	return &ToolListCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]toolListEntry),
		now:        time.Now,
	}
}

// Get returns the cached definitions for key, if present and fresh. Stale
// entries are removed on read.
func (c *ToolListCache) Get(key string) ([]ToolDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.defs, true
}

// Put stores definitions for key. When the bound is exceeded, stale entries
// are dropped first, then the oldest survivors until the cache fits.
func (c *ToolListCache) Put(key string, defs []ToolDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = toolListEntry{defs: defs, storedAt: c.now()}
	if len(c.entries) <= c.maxEntries {
		return
	}

	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.storedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Len returns the current entry count, including not-yet-evicted stale
// entries.
func (c *ToolListCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
