package criteria

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/textio/internal/model"
)

// CachedSource memoizes another source for a short TTL.
// Concurrent misses for the same name share one load.
type CachedSource struct {
	next  Source
	cache *expirable.LRU[string, model.RuleSet]
	group singleflight.Group
}

// NewCachedSource wraps next with an LRU of size entries
func NewCachedSource(next Source, size int, ttl time.Duration) *CachedSource {
	if size <= 0 {
		size = 64
	}
	return &CachedSource{
		next:  next,
		cache: expirable.NewLRU[string, model.RuleSet](size, nil, ttl),
	}
}

// RuleSet returns a cached ruleset or loads it. Errors are not cached.
func (c *CachedSource) RuleSet(ctx context.Context, name string) (model.RuleSet, error) {
	if rs, ok := c.cache.Get(name); ok {
		return rs, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		rs, err := c.next.RuleSet(ctx, name)
		if err != nil {
			return model.RuleSet{}, err
		}
		c.cache.Add(name, rs)
		return rs, nil
	})
	if err != nil {
		return model.RuleSet{}, err
	}
	return v.(model.RuleSet), nil
}

// Purge drops every cached ruleset
func (c *CachedSource) Purge() {
	c.cache.Purge()
}
