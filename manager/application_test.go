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

func newApplicationManager() *manager.ApplicationManager {
	return manager.NewApplicationManager(memory.New(slog.Default()), manager.Options{})
}

func TestApplicationManagerCreateHashesSecret(t *testing.T) {
	m := newApplicationManager()
	ctx := context.Background()

	a, err := m.Create(ctx, manager.ApplicationDescriptor{
		ID:           "client-1",
		Name:         "Test Client",
		ClientSecret: "s3cr3t",
		ClientType:   storage.ClientTypeConfidential,
		RedirectURIs: []string{"https://app.example.com/cb"},
	})
	require.NoError(t, err)
	require.NotEqual(t, "s3cr3t", a.ClientSecret)
	require.True(t, m.ValidateClientSecret(a, "s3cr3t"))
	require.False(t, m.ValidateClientSecret(a, "wrong"))
}

func TestApplicationManagerValidateConfidentialRequiresSecret(t *testing.T) {
	m := newApplicationManager()
	ctx := context.Background()

	_, err := m.Create(ctx, manager.ApplicationDescriptor{
		ID:           "client-2",
		ClientType:   storage.ClientTypeConfidential,
		RedirectURIs: []string{"https://app.example.com/cb"},
	})
	require.Error(t, err)

	var verr *manager.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestApplicationManagerUpdateConcurrencyConflict(t *testing.T) {
	m := newApplicationManager()
	ctx := context.Background()

	a, err := m.Create(ctx, manager.ApplicationDescriptor{
		ID:           "client-3",
		Name:         "Original",
		ClientType:   storage.ClientTypePublic,
		RedirectURIs: []string{"https://app.example.com/cb"},
	})
	require.NoError(t, err)

	_, err = m.Update(ctx, a.ID, "stale-token", func(d *manager.ApplicationDescriptor) {
		d.Name = "Renamed"
	})
	var cerr *manager.ConcurrencyError
	require.ErrorAs(t, err, &cerr)

	updated, err := m.Update(ctx, a.ID, a.ConcurrencyToken, func(d *manager.ApplicationDescriptor) {
		d.Name = "Renamed"
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
}

func TestApplicationManagerFindByIDCaseSensitive(t *testing.T) {
	m := newApplicationManager()
	ctx := context.Background()

	_, err := m.Create(ctx, manager.ApplicationDescriptor{
		ID:           "Client-Mixed-Case",
		ClientType:   storage.ClientTypePublic,
		RedirectURIs: []string{"https://app.example.com/cb"},
	})
	require.NoError(t, err)

	_, err = m.FindByID(ctx, "client-mixed-case")
	require.Error(t, err)

	got, err := m.FindByID(ctx, "Client-Mixed-Case")
	require.NoError(t, err)
	require.Equal(t, "Client-Mixed-Case", got.ID)
}
