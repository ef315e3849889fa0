// Package cache provides the TTL cache used by the knowledge, builder and
// optimizer services.
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is the caching interface used by the services. Implementations must
// be safe for concurrent use.
type Cache interface {
	// Get returns the cached value for key and whether it was present.
	Get(key string) (interface{}, bool)

	// Set stores value under key for the given TTL. A zero TTL uses the
	// cache default.
	Set(key string, value interface{}, ttl time.Duration)

	// Invalidate removes a single key.
	Invalidate(key string)

	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(prefix string)
}

// TTLCache implements Cache on top of go-cache with periodic expiry sweeps.
type TTLCache struct {
	inner *gocache.Cache
}

// NewTTLCache creates a TTLCache with the given default expiration. Expired
// items are purged every defaultTTL to bound memory growth.
func NewTTLCache(defaultTTL time.Duration) *TTLCache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &TTLCache{
		inner: gocache.New(defaultTTL, defaultTTL),
	}
}

func (c *TTLCache) Get(key string) (interface{}, bool) {
	return c.inner.Get(key)
}

func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.inner.Set(key, value, ttl)
}

func (c *TTLCache) Invalidate(key string) {
	c.inner.Delete(key)
}

func (c *TTLCache) InvalidatePrefix(prefix string) {
	for key := range c.inner.Items() {
		if strings.HasPrefix(key, prefix) {
			c.inner.Delete(key)
		}
	}
}
