package access

import (
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultCacheSize = 4096

// Cache holds resolved permission sets keyed by (user, version). Bumping the
// version makes every previously cached entry unreachable by key, which is
// O(1) invalidation; stale entries linger until the TTL evicts them. The
// version counter is read lock-free on the hot path.
type Cache struct {
	version atomic.Uint64
	entries *lru.LRU[string, PermissionSet]
}

// NewCache builds a cache whose entries expire after ttl.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Cache{
		entries: lru.NewLRU[string, PermissionSet](size, nil, ttl),
	}
}

// Get returns the cached set for the user under the current version.
func (c *Cache) Get(userID string) (PermissionSet, bool) {
	return c.entries.Get(c.key(userID))
}

// Put stores a resolved set under the current version.
func (c *Cache) Put(userID string, set PermissionSet) {
	c.entries.Add(c.key(userID), set)
}

// Bump invalidates every cached entry by advancing the global version.
func (c *Cache) Bump() {
	c.version.Add(1)
}

// Version exposes the current counter, mainly for tests and diagnostics.
func (c *Cache) Version() uint64 {
	return c.version.Load()
}

func (c *Cache) key(userID string) string {
	return strconv.FormatUint(c.version.Load(), 10) + ":" + userID
}
