package manager

import (
	"context"
	"strings"

	"github.com/coreoidc/authd/cache"
	"github.com/coreoidc/authd/storage"
)

// ScopeManager implements the Scope entity manager of spec §4.5.
type ScopeManager struct {
	store storage.Store
	opts  Options
}

// NewScopeManager constructs a ScopeManager over store.
func NewScopeManager(store storage.Store, opts Options) *ScopeManager {
	return &ScopeManager{store: store, opts: opts}
}

func scopeCacheKey(name string) string { return "scope:name:" + name }

// Create persists a new Scope.
func (m *ScopeManager) Create(ctx context.Context, s storage.Scope) (storage.Scope, error) {
	if err := m.Validate(s); err != nil {
		return storage.Scope{}, err
	}
	if err := m.store.CreateScope(ctx, s); err != nil {
		return storage.Scope{}, err
	}
	return s, nil
}

// FindByName returns the Scope with the given name, consulting the cache first when enabled.
func (m *ScopeManager) FindByName(ctx context.Context, name string) (storage.Scope, error) {
	if m.opts.Cache != nil {
		if s, ok, err := cache.GetJSON[storage.Scope](ctx, m.opts.Cache, scopeCacheKey(name)); err == nil && ok {
			return s, nil
		}
	}
	s, err := m.store.GetScope(ctx, name)
	if err != nil {
		return storage.Scope{}, err
	}
	if m.opts.Cache != nil {
		_ = cache.SetJSON(ctx, m.opts.Cache, scopeCacheKey(name), s)
	}
	return s, nil
}

// List returns every registered Scope.
func (m *ScopeManager) List(ctx context.Context) ([]storage.Scope, error) {
	return m.store.ListScopes(ctx)
}

// Delete removes the Scope identified by name.
func (m *ScopeManager) Delete(ctx context.Context, name string) error {
	if err := m.store.DeleteScope(ctx, name); err != nil {
		return err
	}
	if m.opts.Cache != nil {
		_ = cache.Invalidate(ctx, m.opts.Cache, scopeCacheKey(name))
	}
	return nil
}

// Validate checks that s has a name containing no spaces, matching the scope-naming invariant
// shared with Authorization.Scopes in spec §4.5.
func (m *ScopeManager) Validate(s storage.Scope) error {
	var messages []string
	if s.Name == "" {
		messages = append(messages, "name is required")
	}
	if strings.ContainsRune(s.Name, ' ') {
		messages = append(messages, "name must not contain spaces")
	}
	if len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	return nil
}
