// Package cache keeps recently fetched channel pages in memory.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"tgwatch/internal/model"
)

// Default limits.
const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 1000
)

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	raw       string
	fetchedAt time.Time
}

// Cache maps a channel to its last fetched raw page.
// Entries expire after the TTL. When full, the entry with the oldest fetch
// time is evicted; reads do not refresh recency.
type Cache struct {
	mu      sync.RWMutex
	entries map[model.ChannelID]entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a Cache. Non-positive arguments fall back to the defaults.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		entries: make(map[model.ChannelID]entry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached page for id. Expired entries are evicted and
// reported as a miss.
func (c *Cache) Get(id model.ChannelID) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if ok && c.fresh(e) {
		c.hits.Add(1)
		return e.raw, true
	}

	if ok {
		c.mu.Lock()
		// Another writer may have refreshed the entry meanwhile.
		if cur, still := c.entries[id]; still && !c.fresh(cur) {
			delete(c.entries, id)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	return "", false
}

// Put stores raw as the latest page for id.
func (c *Cache) Put(id model.ChannelID, raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[id] = entry{raw: raw, fetchedAt: c.now()}
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[model.ChannelID]entry)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}

func (c *Cache) fresh(e entry) bool {
	return c.now().Sub(e.fetchedAt) < c.ttl
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	var (
		oldestID model.ChannelID
		oldestAt time.Time
		found    bool
	)
	for id, e := range c.entries {
		if !found || e.fetchedAt.Before(oldestAt) {
			oldestID, oldestAt, found = id, e.fetchedAt, true
		}
	}
	if found {
		delete(c.entries, oldestID)
		c.evictions.Add(1)
	}
}
