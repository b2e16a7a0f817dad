package markdown

import (
	"crypto/sha256"
	"sync"

	"github.com/golang/groupcache/lru"
)

// Key identifies a document by content.
func Key(src []byte) [sha256.Size]byte {
	return sha256.Sum256(src)
}

// CacheStats are cumulative cache counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Len       int
}

// HitRate returns hits/(hits+misses) as a percentage.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Cache is a bounded LRU of parse results keyed by document hash. It is safe
// for concurrent use.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache
	stats CacheStats
}

// NewCache creates a Cache holding at most size documents.
func NewCache(size int) *Cache {
	c := &Cache{lru: lru.New(max(size, 1))}
	c.lru.OnEvicted = func(lru.Key, any) { c.stats.Evictions++ }
	return c
}

// Get returns cached tables for key.
func (c *Cache) Get(key [sha256.Size]byte) ([]Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return v.([]Table), true
}

// Add stores tables under key.
func (c *Cache) Add(key [sha256.Size]byte, tables []Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, tables)
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Len = c.lru.Len()
	return s
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Clear()
	c.stats = CacheStats{}
}
