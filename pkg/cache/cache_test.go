package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnware/studyctx/pkg/cache"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := cache.NewTTLCache(time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("key", 42, 0)
	value, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, 42, value)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := cache.NewTTLCache(time.Minute)

	c.Set("ephemeral", "value", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("ephemeral")
	assert.False(t, ok)
}

func TestTTLCacheInvalidate(t *testing.T) {
	c := cache.NewTTLCache(time.Minute)

	c.Set("a", 1, 0)
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheInvalidatePrefix(t *testing.T) {
	c := cache.NewTTLCache(time.Minute)

	c.Set("search:one", 1, 0)
	c.Set("search:two", 2, 0)
	c.Set("profile:one", 3, 0)

	c.InvalidatePrefix("search:")

	_, ok := c.Get("search:one")
	assert.False(t, ok)
	_, ok = c.Get("search:two")
	assert.False(t, ok)
	_, ok = c.Get("profile:one")
	assert.True(t, ok)
}
