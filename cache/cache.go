// Package cache implements the entity cache that entity managers consult before falling through
// to the store. Entries are keyed by a fingerprint string computed from a finder's arguments and
// carry a sliding expiration: every read extends the entry's lifetime, matching the "weak
// reference... bounded by a sliding expiration" behavior the data model calls for.
package cache

import (
	"context"
	"time"
)

// DefaultSlidingExpiration is the cache lifetime extended on every hit, absent an explicit
// configuration.
const DefaultSlidingExpiration = time.Minute

// Backend is the minimal interface a cache implementation must satisfy. Get extends the entry's
// sliding expiration on a hit. Set writes with the sliding expiration as the initial TTL. Remove
// is used on invalidation.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, slidingExpiration time.Duration) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Cache wraps a Backend with JSON marshaling so managers can cache arbitrary entity values
// without each backend needing to know the entity types.
type Cache struct {
	backend           Backend
	slidingExpiration time.Duration
}

// New wraps backend with the default sliding expiration.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, slidingExpiration: DefaultSlidingExpiration}
}

// WithSlidingExpiration returns a copy of c using the given sliding expiration instead of the
// default.
func (c *Cache) WithSlidingExpiration(d time.Duration) *Cache {
	return &Cache{backend: c.backend, slidingExpiration: d}
}

func (c *Cache) Close() error { return c.backend.Close() }
