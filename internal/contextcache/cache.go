// Package contextcache keeps assembled grounding context for a bounded time so
// repeated conversions against the same schema skip prompt assembly.
package contextcache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultTTL = time.Hour

type Entry struct {
	Key       string
	Value     string
	CreatedAt time.Time
}

type Cache struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]Entry
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the value only while now - CreatedAt <= TTL.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.expired(entry) {
		return "", false
	}
	return entry.Value, true
}

// Put stores value under key. The last write wins.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	c.entries[key] = Entry{Key: key, Value: value, CreatedAt: c.now()}
	c.mu.Unlock()
}

// EvictExpired drops expired entries and returns how many were removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrBuild returns the cached value or runs build once for all concurrent
// callers of the same key. The bool result reports a cache hit.
func (c *Cache) GetOrBuild(key string, build func() (string, error)) (string, bool, error) {
	if value, ok := c.Get(key); ok {
		return value, true, nil
	}
	value, err, _ := c.group.Do(key, func() (any, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		built, err := build()
		if err != nil {
			return "", err
		}
		c.Put(key, built)
		return built, nil
	})
	if err != nil {
		return "", false, err
	}
	return value.(string), false, nil
}

func (c *Cache) expired(entry Entry) bool {
	return c.now().Sub(entry.CreatedAt) > c.ttl
}
