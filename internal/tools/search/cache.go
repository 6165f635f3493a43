package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"researchnerd/internal/logging"
	"researchnerd/internal/types"
)

// cacheEntry holds one cached result list.
type cacheEntry struct {
	results   []types.SearchResult
	createdAt time.Time
	expiresAt time.Time
}

// Cache is an in-memory TTL cache of search results with oldest-first eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a new cache with the given size limit and TTL.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves unexpired results by key.
func (c *Cache) Get(key string) ([]types.SearchResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.results, true
}

// Set stores results in the cache.
func (c *Cache) Set(key string, results []types.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = &cacheEntry{
		results:   results,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

// Size returns the number of entries in the cache.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes expired entries, or failing that the oldest one.
func (c *Cache) evictOldest() {
	now := c.now()
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
		}
	}

	if len(c.entries) >= c.maxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// hashKey creates a cache key from arbitrary inputs.
func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Cached wraps a Provider with a Cache. Errors are never cached.
type Cached struct {
	inner Provider
	cache *Cache
}

// NewCached returns p fronted by cache.
func NewCached(p Provider, cache *Cache) *Cached {
	return &Cached{inner: p, cache: cache}
}

// Name implements Provider.
func (c *Cached) Name() string { return c.inner.Name() + "+cache" }

// Search implements Provider.
func (c *Cached) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	key := hashKey(c.inner.Name(), strings.ToLower(strings.TrimSpace(query)), strconv.Itoa(maxResults))
	if results, ok := c.cache.Get(key); ok {
		logging.SearchDebug("cache hit for %q", query)
		return results, nil
	}

	results, err := c.inner.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, results)
	return results, nil
}
