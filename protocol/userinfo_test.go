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

func TestUserinfoResolvesSubjectAndAllowedClaimsFromBearerToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, authz, tokens := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{ID: "client-ui-1", ClientType: storage.ClientTypePublic})
	require.NoError(t, err)
	authorization, err := authz.Create(ctx, manager.AuthorizationDescriptor{ApplicationID: app.ID, Subject: "user-1", Scopes: []string{"openid", "email"}})
	require.NoError(t, err)
	access, err := tokens.Create(ctx, manager.TokenDescriptor{
		ApplicationID: app.ID, AuthorizationID: authorization.ID, Subject: "user-1",
		Type: storage.TokenAccess, ExpirationDate: clock.Now().Add(time.Hour),
		ReferenceID: "at-ui-1", Properties: map[string]string{"scope": "openid email"},
	})
	require.NoError(t, err)

	d := pipeline.NewDispatcher()
	protocol.RegisterUserinfoHandlers(d, tokens)
	require.NoError(t, d.Validate())

	opts := baseOptions(clock, nil)
	tx := oauth2tx.New(ctx, oauth2tx.EndpointUserinfo, opts)
	tx.Request.SetString("access_token", access.ReferenceID)

	rc := protocol.NewUserinfoContext(tx)
	require.NoError(t, d.Dispatch(ctx, rc))
	require.Equal(t, "user-1", rc.Subject)
	require.ElementsMatch(t, []string{"sub", "email", "email_verified"}, rc.AllowedClaims)
}

func TestUserinfoRejectsMissingBearerToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, _, tokens := newManagers(t, clock)
	ctx := context.Background()

	d := pipeline.NewDispatcher()
	protocol.RegisterUserinfoHandlers(d, tokens)

	opts := baseOptions(clock, nil)
	tx := oauth2tx.New(ctx, oauth2tx.EndpointUserinfo, opts)

	rc := protocol.NewUserinfoContext(tx)
	err := d.Dispatch(ctx, rc)
	require.Error(t, err)

	var perr *pipeline.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.ErrInvalidRequest, perr.Code)
}

func TestUserinfoRejectsExpiredAccessToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, authz, tokens := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{ID: "client-ui-2", ClientType: storage.ClientTypePublic})
	require.NoError(t, err)
	authorization, err := authz.Create(ctx, manager.AuthorizationDescriptor{ApplicationID: app.ID, Subject: "user-2", Scopes: []string{"openid"}})
	require.NoError(t, err)
	access, err := tokens.Create(ctx, manager.TokenDescriptor{
		ApplicationID: app.ID, AuthorizationID: authorization.ID, Subject: "user-2",
		Type: storage.TokenAccess, ExpirationDate: clock.Now().Add(time.Minute),
		ReferenceID: "at-ui-2", Properties: map[string]string{"scope": "openid"},
	})
	require.NoError(t, err)

	clock.Advance(time.Hour)

	d := pipeline.NewDispatcher()
	protocol.RegisterUserinfoHandlers(d, tokens)

	opts := baseOptions(clock, nil)
	tx := oauth2tx.New(ctx, oauth2tx.EndpointUserinfo, opts)
	tx.Request.SetString("access_token", access.ReferenceID)

	rc := protocol.NewUserinfoContext(tx)
	err = d.Dispatch(ctx, rc)
	require.Error(t, err)
}

func TestAllowedClaimsForScopesAlwaysIncludesSub(t *testing.T) {
	claims := protocol.AllowedClaimsForScopes(nil)
	require.Equal(t, []string{"sub"}, claims)

	claims = protocol.AllowedClaimsForScopes([]string{"profile", "phone"})
	require.Contains(t, claims, "name")
	require.Contains(t, claims, "phone_number")
}
