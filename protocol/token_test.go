package protocol_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/protocol"
	"github.com/coreoidc/authd/storage"
	"github.com/coreoidc/authd/storage/memory"
	"github.com/coreoidc/authd/token"
)

func newManagers(t *testing.T, clock clockwork.Clock) (*manager.ApplicationManager, *manager.AuthorizationManager, *manager.TokenManager) {
	t.Helper()
	store := memory.New(slog.Default())
	opts := manager.Options{Clock: clock}
	return manager.NewApplicationManager(store, opts), manager.NewAuthorizationManager(store, opts), manager.NewTokenManager(store, opts)
}

func baseOptions(clock clockwork.Clock, serializer token.TokenSerializer) oauth2tx.Options {
	return oauth2tx.Options{
		Issuer:                 "https://issuer.example",
		SupportedGrantTypes:    map[string]bool{protocol.GrantAuthorizationCode: true, protocol.GrantRefreshToken: true},
		SupportedResponseTypes: map[string]bool{"code": true},
		Clock:                  clock,
		Serializer:             serializer,
		AccessTokenLifetime:    time.Hour,
		IdentityTokenLifetime:  time.Hour,
	}
}

func TestTokenEndpointIssuesSignedAccessAndIdentityTokens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, authz, tokens := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{
		ID: "client-1", ClientType: storage.ClientTypePublic,
		RedirectURIs: []string{"https://app.example.com/cb"},
	})
	require.NoError(t, err)

	authorization, err := authz.Create(ctx, manager.AuthorizationDescriptor{
		ApplicationID: app.ID, Subject: "user-1", Scopes: []string{"openid", "profile"},
	})
	require.NoError(t, err)

	code, err := tokens.Create(ctx, manager.TokenDescriptor{
		ApplicationID: app.ID, AuthorizationID: authorization.ID, Subject: authorization.Subject,
		Type: storage.TokenAuthorizationCode, ExpirationDate: clock.Now().Add(5 * time.Minute),
		ReferenceID: "code-ref", Properties: map[string]string{"redirect_uri": "https://app.example.com/cb"},
	})
	require.NoError(t, err)

	keys := token.NewStaticKeyStore()
	serializer := token.NewJOSESerializer(keys)
	opts := baseOptions(clock, serializer)

	d := pipeline.NewDispatcher()
	protocol.RegisterTokenHandlers(d, apps, authz, tokens)
	require.NoError(t, d.Validate())

	tx := oauth2tx.New(ctx, oauth2tx.EndpointToken, opts)
	tx.Request.SetString("grant_type", protocol.GrantAuthorizationCode)
	tx.Request.SetClientID(app.ID)
	tx.Request.SetString("code", code.ReferenceID)
	tx.Request.SetRedirectURI("https://app.example.com/cb")

	validated := protocol.NewTokenValidateContext(tx)
	require.NoError(t, d.Dispatch(ctx, validated))
	require.False(t, validated.IsRejected())
	require.NotNil(t, validated.Code)
	require.NotNil(t, validated.Authorization)

	handled := protocol.NewTokenHandleContext(tx, validated)
	require.NoError(t, d.Dispatch(ctx, handled))
	require.True(t, handled.IsHandled())
	require.NotEmpty(t, handled.IssuedAccessToken)
	require.NotEmpty(t, handled.IssuedIdentityToken)

	principal, err := serializer.DeserializeAccessToken(handled.IssuedAccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", principal.Subject)
	require.ElementsMatch(t, []string{"openid", "profile"}, principal.Scopes)

	redeemed, err := tokens.FindByID(ctx, code.ID)
	require.NoError(t, err)
	require.Equal(t, storage.TokenRedeemed, redeemed.Status)
}

func TestTokenEndpointRejectsRedeemedCodeTwice(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, authz, tokens := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{
		ID: "client-2", ClientType: storage.ClientTypePublic,
		RedirectURIs: []string{"https://app.example.com/cb"},
	})
	require.NoError(t, err)
	authorization, err := authz.Create(ctx, manager.AuthorizationDescriptor{
		ApplicationID: app.ID, Subject: "user-2", Scopes: []string{"openid"},
	})
	require.NoError(t, err)
	code, err := tokens.Create(ctx, manager.TokenDescriptor{
		ApplicationID: app.ID, AuthorizationID: authorization.ID, Subject: authorization.Subject,
		Type: storage.TokenAuthorizationCode, ExpirationDate: clock.Now().Add(5 * time.Minute),
		ReferenceID: "code-ref-2", Properties: map[string]string{"redirect_uri": "https://app.example.com/cb"},
	})
	require.NoError(t, err)

	opts := baseOptions(clock, nil)
	d := pipeline.NewDispatcher()
	protocol.RegisterTokenHandlers(d, apps, authz, tokens)

	runOnce := func() error {
		tx := oauth2tx.New(ctx, oauth2tx.EndpointToken, opts)
		tx.Request.SetString("grant_type", protocol.GrantAuthorizationCode)
		tx.Request.SetClientID(app.ID)
		tx.Request.SetString("code", code.ReferenceID)
		tx.Request.SetRedirectURI("https://app.example.com/cb")

		validated := protocol.NewTokenValidateContext(tx)
		if err := d.Dispatch(ctx, validated); err != nil {
			return err
		}
		if validated.IsRejected() {
			return validated.Rejected()
		}
		handled := protocol.NewTokenHandleContext(tx, validated)
		if err := d.Dispatch(ctx, handled); err != nil {
			return err
		}
		if handled.IsRejected() {
			return handled.Rejected()
		}
		return nil
	}

	require.NoError(t, runOnce())
	err = runOnce()
	require.Error(t, err)
}

func TestTokenEndpointPopulatesAudiencePropertyForTrustedPeer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, authz, tokens := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{
		ID: "client-4", ClientType: storage.ClientTypePublic,
		RedirectURIs: []string{"https://app.example.com/cb"},
		Permissions:  []string{protocol.PermissionAudiencePrefix + "billing-service"},
	})
	require.NoError(t, err)

	authorization, err := authz.Create(ctx, manager.AuthorizationDescriptor{
		ApplicationID: app.ID, Subject: "user-4", Scopes: []string{"openid"},
	})
	require.NoError(t, err)
	code, err := tokens.Create(ctx, manager.TokenDescriptor{
		ApplicationID: app.ID, AuthorizationID: authorization.ID, Subject: authorization.Subject,
		Type: storage.TokenAuthorizationCode, ExpirationDate: clock.Now().Add(5 * time.Minute),
		ReferenceID: "code-ref-4", Properties: map[string]string{"redirect_uri": "https://app.example.com/cb"},
	})
	require.NoError(t, err)

	opts := baseOptions(clock, nil)
	d := pipeline.NewDispatcher()
	protocol.RegisterTokenHandlers(d, apps, authz, tokens)

	tx := oauth2tx.New(ctx, oauth2tx.EndpointToken, opts)
	tx.Request.SetString("grant_type", protocol.GrantAuthorizationCode)
	tx.Request.SetClientID(app.ID)
	tx.Request.SetString("code", code.ReferenceID)
	tx.Request.SetRedirectURI("https://app.example.com/cb")
	tx.Request.SetString("audience", "billing-service")

	validated := protocol.NewTokenValidateContext(tx)
	require.NoError(t, d.Dispatch(ctx, validated))

	handled := protocol.NewTokenHandleContext(tx, validated)
	require.NoError(t, d.Dispatch(ctx, handled))
	require.True(t, handled.IsHandled())
	require.Equal(t, "billing-service", handled.AccessToken.Properties["audience"])
}

func TestTokenEndpointRejectsUnknownGrantType(t *testing.T) {
	clock := clockwork.NewFakeClock()
	apps, authz, tokens := newManagers(t, clock)
	ctx := context.Background()

	app, err := apps.Create(ctx, manager.ApplicationDescriptor{
		ID: "client-3", ClientType: storage.ClientTypePublic,
		RedirectURIs: []string{"https://app.example.com/cb"},
	})
	require.NoError(t, err)

	opts := baseOptions(clock, nil)
	d := pipeline.NewDispatcher()
	protocol.RegisterTokenHandlers(d, apps, authz, tokens)

	tx := oauth2tx.New(ctx, oauth2tx.EndpointToken, opts)
	tx.Request.SetString("grant_type", "not_a_real_grant")
	tx.Request.SetClientID(app.ID)

	validated := protocol.NewTokenValidateContext(tx)
	err = d.Dispatch(ctx, validated)
	require.Error(t, err)
	require.True(t, validated.IsRejected())

	var perr *pipeline.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.ErrUnsupportedGrantType, perr.Code)
}
