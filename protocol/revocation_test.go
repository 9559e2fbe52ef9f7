package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/protocol"
	"github.com/coreoidc/authd/storage"
)

func TestRevocationCascadesFromRefreshToAccessToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, authz, tokens := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{ID: "client-rev-1", ClientType: storage.ClientTypeConfidential, ClientSecret: "s3cr3t"})
	require.NoError(t, err)
	authorization, err := authz.Create(ctx, manager.AuthorizationDescriptor{ApplicationID: app.ID, Subject: "user-1", Scopes: []string{"offline_access"}})
	require.NoError(t, err)

	refresh, err := tokens.Create(ctx, manager.TokenDescriptor{
		ApplicationID: app.ID, AuthorizationID: authorization.ID, Subject: "user-1",
		Type: storage.TokenRefresh, ExpirationDate: clock.Now().Add(24 * time.Hour),
		ReferenceID: "refresh-ref",
	})
	require.NoError(t, err)
	access, err := tokens.Create(ctx, manager.TokenDescriptor{
		ApplicationID: app.ID, AuthorizationID: authorization.ID, Subject: "user-1",
		Type: storage.TokenAccess, ExpirationDate: clock.Now().Add(time.Hour),
		ReferenceID: "access-ref",
	})
	require.NoError(t, err)

	d := pipeline.NewDispatcher()
	protocol.RegisterRevocationHandlers(d, apps, tokens)
	require.NoError(t, d.Validate())

	opts := baseOptions(clock, nil)
	tx := oauth2tx.New(ctx, oauth2tx.EndpointRevocation, opts)
	tx.Request.SetClientID(app.ID)
	tx.Request.SetString("client_secret", "s3cr3t")
	tx.Request.SetString("token", refresh.ReferenceID)

	rc := protocol.NewRevocationContext(tx)
	require.NoError(t, d.Dispatch(ctx, rc))
	require.True(t, rc.IsHandled())

	revokedRefresh, err := tokens.FindByID(ctx, refresh.ID)
	require.NoError(t, err)
	require.Equal(t, storage.TokenRevoked, revokedRefresh.Status)

	revokedAccess, err := tokens.FindByID(ctx, access.ID)
	require.NoError(t, err)
	require.Equal(t, storage.TokenRevoked, revokedAccess.Status)
}

func TestRevocationIsIdempotentForUnknownToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, _, tokens := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{ID: "client-rev-2", ClientType: storage.ClientTypeConfidential, ClientSecret: "s3cr3t"})
	require.NoError(t, err)

	d := pipeline.NewDispatcher()
	protocol.RegisterRevocationHandlers(d, apps, tokens)

	opts := baseOptions(clock, nil)
	tx := oauth2tx.New(ctx, oauth2tx.EndpointRevocation, opts)
	tx.Request.SetClientID(app.ID)
	tx.Request.SetString("client_secret", "s3cr3t")
	tx.Request.SetString("token", "never-issued")

	rc := protocol.NewRevocationContext(tx)
	require.NoError(t, d.Dispatch(ctx, rc))
	require.True(t, rc.IsHandled())
	require.False(t, rc.IsRejected())
}
