package manager_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/cache"
	cachememory "github.com/coreoidc/authd/cache/memory"
	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/storage"
	"github.com/coreoidc/authd/storage/memory"
)

func TestScopeManagerCreateAndList(t *testing.T) {
	m := manager.NewScopeManager(memory.New(slog.Default()), manager.Options{})
	ctx := context.Background()

	_, err := m.Create(ctx, storage.Scope{Name: "openid", DisplayName: "OpenID"})
	require.NoError(t, err)
	_, err = m.Create(ctx, storage.Scope{Name: "profile", DisplayName: "Profile"})
	require.NoError(t, err)

	scopes, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
}

func TestScopeManagerValidateRejectsSpaces(t *testing.T) {
	m := manager.NewScopeManager(memory.New(slog.Default()), manager.Options{})
	ctx := context.Background()

	_, err := m.Create(ctx, storage.Scope{Name: "bad name"})
	var verr *manager.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestScopeManagerDeleteInvalidatesCache(t *testing.T) {
	backend := memory.New(slog.Default())
	c := cache.New(cachememory.New())
	m := manager.NewScopeManager(backend, manager.Options{Cache: c})
	ctx := context.Background()

	_, err := m.Create(ctx, storage.Scope{Name: "openid"})
	require.NoError(t, err)

	_, err = m.FindByName(ctx, "openid")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "openid"))

	_, err = m.FindByName(ctx, "openid")
	require.Error(t, err)
}
