package protocol_test

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/protocol"
	"github.com/coreoidc/authd/storage"
)

func TestLogoutAllowsRequestWithoutRedirectURI(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, _, _ := newManagers(t, clock)
	ctx := context.Background()

	d := pipeline.NewDispatcher()
	protocol.RegisterLogoutHandlers(d, apps)
	require.NoError(t, d.Validate())

	opts := baseOptions(clock, nil)
	tx := oauth2tx.New(ctx, oauth2tx.EndpointLogout, opts)

	rc := protocol.NewLogoutContext(tx)
	require.NoError(t, d.Dispatch(ctx, rc))
	require.Nil(t, rc.ValidatedRedirectURI)
}

func TestLogoutValidatesRegisteredPostLogoutRedirectURI(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, _, _ := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{
		ID: "client-logout-1", ClientType: storage.ClientTypePublic,
		PostLogoutRedirectURIs: []string{"https://app.example.com/logged-out"},
	})
	require.NoError(t, err)

	d := pipeline.NewDispatcher()
	protocol.RegisterLogoutHandlers(d, apps)

	opts := baseOptions(clock, nil)
	tx := oauth2tx.New(ctx, oauth2tx.EndpointLogout, opts)
	tx.Request.SetClientID(app.ID)
	tx.Request.SetString("post_logout_redirect_uri", "https://app.example.com/logged-out")

	rc := protocol.NewLogoutContext(tx)
	require.NoError(t, d.Dispatch(ctx, rc))
	require.NotNil(t, rc.ValidatedRedirectURI)
	require.Equal(t, "https://app.example.com/logged-out", rc.ValidatedRedirectURI.String())
}

func TestLogoutRejectsUnregisteredPostLogoutRedirectURI(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, _, _ := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{
		ID: "client-logout-2", ClientType: storage.ClientTypePublic,
		PostLogoutRedirectURIs: []string{"https://app.example.com/logged-out"},
	})
	require.NoError(t, err)

	d := pipeline.NewDispatcher()
	protocol.RegisterLogoutHandlers(d, apps)

	opts := baseOptions(clock, nil)
	tx := oauth2tx.New(ctx, oauth2tx.EndpointLogout, opts)
	tx.Request.SetClientID(app.ID)
	tx.Request.SetString("post_logout_redirect_uri", "https://evil.example.com/")

	rc := protocol.NewLogoutContext(tx)
	err = d.Dispatch(ctx, rc)
	require.Error(t, err)

	var perr *pipeline.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.ErrInvalidRequest, perr.Code)
}
