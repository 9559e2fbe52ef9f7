package cache

import (
	"context"
	"encoding/json"
)

// GetJSON reads a cached value and unmarshals it into a T. The zero value and false are returned
// on a miss.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// SetJSON marshals v and writes it under key with the cache's sliding expiration.
func SetJSON[T any](ctx context.Context, c *Cache, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, key, raw, c.slidingExpiration)
}

// Invalidate removes key, and is safe to call for keys that were never set.
func Invalidate(ctx context.Context, c *Cache, key string) error {
	return c.backend.Remove(ctx, key)
}
