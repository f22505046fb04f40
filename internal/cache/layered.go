package cache

import (
	"context"
	"fmt"
	"time"
)

// LayeredCache reads through a local layer to a shared one.
// The local layer answers first; shared hits are promoted.
type LayeredCache struct {
	local  Cache
	shared Cache
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(local, shared Cache) *LayeredCache {
	return &LayeredCache{local: local, shared: shared}
}

// Get checks local first, then shared
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, found := c.local.Get(ctx, key); found {
		return val, true
	}

	if val, found := c.shared.Get(ctx, key); found {
		_ = c.local.Set(ctx, key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers. The local write always happens;
// a shared failure is returned after it.
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("shared layer: %w", err)
	}
	return nil
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	return c.shared.Delete(ctx, key)
}

// Clear empties both layers
func (c *LayeredCache) Clear(ctx context.Context) error {
	_ = c.local.Clear(ctx)
	return c.shared.Clear(ctx)
}
