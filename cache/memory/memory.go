// Package memory provides an in-process cache.Backend, used in tests and single-instance
// deployments where a shared cache tier isn't warranted.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/coreoidc/authd/cache"
)

var _ cache.Backend = (*Backend)(nil)

type entry struct {
	value   []byte
	window  time.Duration
	expires time.Time
}

// Backend is a mutex-guarded map with lazy expiration: entries are only reaped when touched or
// enumerated, not by a background sweep. Every successful Get extends the entry's expiration by
// its original sliding window, matching the cache's sliding-expiration contract.
type Backend struct {
	mu    sync.Mutex
	items map[string]entry
	clock clockwork.Clock
}

// New returns an empty Backend using the real clock.
func New() *Backend {
	return &Backend{items: make(map[string]entry), clock: clockwork.NewRealClock()}
}

// NewWithClock returns an empty Backend using clock, for deterministic sliding-expiration tests.
func NewWithClock(clock clockwork.Clock) *Backend {
	return &Backend{items: make(map[string]entry), clock: clock}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.items[key]
	if !ok {
		return nil, false, nil
	}
	now := b.clock.Now()
	if now.After(e.expires) {
		delete(b.items, key)
		return nil, false, nil
	}
	e.expires = now.Add(e.window)
	b.items[key] = e
	return e.value, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, slidingExpiration time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = entry{value: value, window: slidingExpiration, expires: b.clock.Now().Add(slidingExpiration)}
	return nil
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, key)
	return nil
}

func (b *Backend) Close() error { return nil }
