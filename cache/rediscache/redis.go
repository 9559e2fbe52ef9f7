// Package rediscache provides a cache.Backend backed by Redis, for deployments that run more
// than one authorization server instance against a shared cache tier.
package rediscache

import (
	"context"
	"time"

	redisv8 "github.com/go-redis/redis/v8"

	"github.com/coreoidc/authd/cache"
)

var _ cache.Backend = (*Backend)(nil)

// Config configures the Redis connection. It mirrors dex's redis storage config: a universal
// client so the same settings work against a single node, a cluster, or a sentinel setup.
type Config struct {
	Addrs            []string `json:"addrs" yaml:"addrs"`
	Password         string   `json:"password" yaml:"password"`
	SentinelPassword string   `json:"sentinel_password" yaml:"sentinel_password"`
	MasterName       string   `json:"master_name" yaml:"master_name"`

	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// SlidingExpiration overrides cache.DefaultSlidingExpiration when non-zero.
	SlidingExpiration time.Duration `json:"sliding_expiration" yaml:"sliding_expiration"`
}

// Open connects to Redis using c.
func (c *Config) Open() *Backend {
	opts := &redisv8.UniversalOptions{
		Addrs:            c.Addrs,
		Password:         c.Password,
		SentinelPassword: c.SentinelPassword,
		MasterName:       c.MasterName,
	}
	return &Backend{
		db:                redisv8.NewUniversalClient(opts),
		prefix:            c.KeyPrefix,
		slidingExpiration: c.SlidingExpiration,
	}
}

// Backend is a cache.Backend backed by Redis, using Redis's own TTL as the sliding expiration
// mechanism: a successful Get re-issues the TTL via GETEX so repeated reads keep an entry alive.
type Backend struct {
	db                redisv8.UniversalClient
	prefix            string
	slidingExpiration time.Duration
}

func (b *Backend) key(key string) string { return b.prefix + key }

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ttl := b.slidingExpiration
	if ttl <= 0 {
		ttl = cache.DefaultSlidingExpiration
	}
	val, err := b.db.GetEx(ctx, b.key(key), ttl).Bytes()
	if err == redisv8.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, slidingExpiration time.Duration) error {
	return b.db.Set(ctx, b.key(key), value, slidingExpiration).Err()
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	err := b.db.Del(ctx, b.key(key)).Err()
	if err == redisv8.Nil {
		return nil
	}
	return err
}

func (b *Backend) Close() error { return b.db.Close() }
