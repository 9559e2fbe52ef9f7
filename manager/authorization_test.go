package manager_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/storage"
	"github.com/coreoidc/authd/storage/memory"
)

func newAuthorizationManager() *manager.AuthorizationManager {
	return manager.NewAuthorizationManager(memory.New(slog.Default()), manager.Options{})
}

func TestAuthorizationManagerCreateAndFind(t *testing.T) {
	m := newAuthorizationManager()
	ctx := context.Background()

	a, err := m.Create(ctx, manager.AuthorizationDescriptor{
		ApplicationID: "client-1",
		Subject:       "alice",
		Type:          storage.AuthorizationPermanent,
		Scopes:        []string{"openid", "profile"},
	})
	require.NoError(t, err)
	require.Equal(t, storage.AuthorizationValid, a.Status)

	found, err := m.Find(ctx, "alice", "client-1", nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, a.ID, found[0].ID)

	scoped, err := m.Find(ctx, "alice", "client-1", nil, nil, []string{"profile"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)

	none, err := m.Find(ctx, "alice", "client-1", nil, nil, []string{"admin"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestAuthorizationManagerValidateRejectsBadScopes(t *testing.T) {
	m := newAuthorizationManager()
	ctx := context.Background()

	_, err := m.Create(ctx, manager.AuthorizationDescriptor{
		ApplicationID: "client-1",
		Subject:       "alice",
		Type:          storage.AuthorizationAdHoc,
		Scopes:        []string{"open id"},
	})
	var verr *manager.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAuthorizationManagerRevokeIsIdempotent(t *testing.T) {
	m := newAuthorizationManager()
	ctx := context.Background()

	a, err := m.Create(ctx, manager.AuthorizationDescriptor{
		ApplicationID: "client-1",
		Subject:       "alice",
		Type:          storage.AuthorizationPermanent,
		Scopes:        []string{"openid"},
	})
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, a.ID))
	require.NoError(t, m.Revoke(ctx, a.ID))

	got, err := m.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.IsRevoked())
}
