package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/cache"
	"github.com/coreoidc/authd/cache/memory"
)

type probe struct {
	ID   string
	Name string
}

func TestCacheRoundTrip(t *testing.T) {
	c := cache.New(memory.New())
	ctx := context.Background()

	_, ok, err := cache.GetJSON[probe](ctx, c, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.SetJSON(ctx, c, "app:1", probe{ID: "1", Name: "Test App"}))

	got, ok, err := cache.GetJSON[probe](ctx, c, "app:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Test App", got.Name)

	require.NoError(t, cache.Invalidate(ctx, c, "app:1"))
	_, ok, err = cache.GetJSON[probe](ctx, c, "app:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheSlidingExpiration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := memory.NewWithClock(clock)
	c := cache.New(backend).WithSlidingExpiration(time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, c, "k", probe{ID: "k"}))

	clock.Advance(50 * time.Second)
	_, ok, err := cache.GetJSON[probe](ctx, c, "k")
	require.NoError(t, err)
	require.True(t, ok, "entry should still be live within the sliding window")

	clock.Advance(70 * time.Second)
	_, ok, err = cache.GetJSON[probe](ctx, c, "k")
	require.NoError(t, err)
	require.False(t, ok, "entry should expire once untouched past the sliding window")
}
