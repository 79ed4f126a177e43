package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

const (
	defaultCacheMaxBytes = 64 << 20
	cacheCounterFactor   = 10
)

// Cache wraps a Provider with a cost-bounded in-memory vector cache keyed by
// the exact input text, so a content change is automatically a cache miss.
// Lookups that miss compute through the wrapped provider and remember the
// result.
type Cache struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCache builds a caching decorator around inner. maxBytes bounds the
// total vector payload held; non-positive values use the default budget.
func NewCache(inner Provider, maxBytes int64) (*Cache, error) {
	if inner == nil {
		return nil, fmt.Errorf("embedding cache: nil provider")
	}
	if maxBytes <= 0 {
		maxBytes = defaultCacheMaxBytes
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxBytes / 256 * cacheCounterFactor,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Cache{inner: inner, cache: rc}, nil
}

// Embed returns the cached vector for text when present, otherwise computes
// it through the wrapped provider and caches the result. Provider errors
// pass through uncached so a transient failure does not poison the entry.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, int64(len(vec))*4)
	return vec, nil
}

func (c *Cache) Dimensions() int { return c.inner.Dimensions() }

func (c *Cache) Name() string { return c.inner.Name() + "+cache" }

// Wait blocks until buffered cache writes are applied. Only tests need it.
func (c *Cache) Wait() { c.cache.Wait() }

// Close releases the underlying cache resources.
func (c *Cache) Close() { c.cache.Close() }
