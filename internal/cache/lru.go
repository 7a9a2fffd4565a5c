// Package cache provides the bounded, move-to-front key/value cache (C5)
// used to memoize folder identifiers (URNs) by path. It is a thin, typed
// wrapper around github.com/golang/groupcache/lru, the same eviction
// primitive the teacher uses to bound the number of live inotify watches in
// pkg/filesystem/watching/watch_non_recursive_linux.go.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// FolderURNCache is a bounded path -> folder-URN cache with move-to-front
// on access. It is safe for concurrent use.
type FolderURNCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// New creates a new cache with the given maximum number of entries. A
// capacity of 0 means no limit is enforced (matching lru.Cache's own
// convention).
func New(capacity int) *FolderURNCache {
	c := &FolderURNCache{
		cache: lru.New(capacity),
	}
	return c
}

// Add inserts or updates the URN recorded for path, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *FolderURNCache) Add(path, urn string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(path, urn)
}

// Get retrieves the URN recorded for path, if any, promoting it to
// most-recently-used on success.
func (c *FolderURNCache) Get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.cache.Get(path)
	if !ok {
		return "", false
	}
	return value.(string), true
}

// Remove evicts the entry for path, if present.
func (c *FolderURNCache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(path)
}

// Len returns the number of entries currently cached.
func (c *FolderURNCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Clear removes all entries from the cache.
func (c *FolderURNCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Clear()
}
