package redis

import (
	"context"
	"errors"
	"time"
)

// ThesisCache stores read views of lineages as JSON.
// Writers invalidate after every successful transition.
type ThesisCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewThesisCache creates a ThesisCache. A non-positive ttl uses TTLThesisView.
func NewThesisCache(cache *Cache, ttl time.Duration) *ThesisCache {
	if ttl <= 0 {
		ttl = TTLThesisView
	}
	return &ThesisCache{cache: cache, ttl: ttl}
}

// Get reads the view for lineageID into dest. Returns false on a miss.
func (c *ThesisCache) Get(ctx context.Context, lineageID string, dest any) (bool, error) {
	err := c.cache.Get(ctx, ThesisKey(lineageID), dest)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Set stores the view for lineageID.
func (c *ThesisCache) Set(ctx context.Context, lineageID string, view any) error {
	return c.cache.Set(ctx, ThesisKey(lineageID), view, c.ttl)
}

// Invalidate drops the view for lineageID.
func (c *ThesisCache) Invalidate(ctx context.Context, lineageID string) error {
	return c.cache.Delete(ctx, ThesisKey(lineageID))
}
