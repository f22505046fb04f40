package cache

import (
	"context"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

const keyPrefix = "textio:v1:"

// Key builds a namespaced cache key, e.g. Key("question", rewriteID)
func Key(namespace string, parts ...string) string {
	return keyPrefix + namespace + ":" + strings.Join(parts, ":")
}
