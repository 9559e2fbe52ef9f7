package httpapi_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/httpapi"
	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/storage"
	"github.com/coreoidc/authd/storage/memory"
	"github.com/coreoidc/authd/token"
)

func newTestServer(t *testing.T, clock clockwork.Clock) (*httpapi.Server, *manager.ApplicationManager, storage.Application) {
	t.Helper()
	store := memory.New(slog.Default())
	opts := manager.Options{Clock: clock}
	apps := manager.NewApplicationManager(store, opts)
	authz := manager.NewAuthorizationManager(store, opts)
	tokens := manager.NewTokenManager(store, opts)
	scopes := manager.NewScopeManager(store, opts)

	app, err := apps.Create(context.Background(), manager.ApplicationDescriptor{
		ID: "e2e-client", ClientType: storage.ClientTypeConfidential, ClientSecret: "s3cr3t",
		RedirectURIs:           []string{"https://app.example.com/cb"},
		PostLogoutRedirectURIs: []string{"https://app.example.com/logged-out"},
	})
	require.NoError(t, err)

	keys := token.NewStaticKeyStore()
	serializer := token.NewJOSESerializer(keys)

	srv, err := httpapi.NewServer(httpapi.Config{
		Issuer:         "https://issuer.example",
		Apps:           apps,
		Authorizations: authz,
		Tokens:         tokens,
		Scopes:         scopes,
		Keys:           keys,
		Serializer:     serializer,
		Signin: httpapi.SigninFunc(func(w http.ResponseWriter, r *http.Request, applicationID string, requestedScopes []string) (string, []string, bool) {
			return "user-1", requestedScopes, true
		}),
		Options: oauth2tx.Options{
			SupportedResponseTypes: map[string]bool{"code": true},
			SupportedGrantTypes:    map[string]bool{"authorization_code": true, "refresh_token": true},
			EnabledEndpoints:       map[oauth2tx.EndpointKind]bool{oauth2tx.EndpointToken: true},
			Clock:                  clock,
			AccessTokenLifetime:    time.Hour,
			IdentityTokenLifetime:  time.Hour,
		},
	})
	require.NoError(t, err)
	return srv, apps, app
}

func TestAuthorizationCodeToTokenToUserinfoEndToEnd(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv, _, app := newTestServer(t, clock)

	authorizeReq := httptest.NewRequest(http.MethodGet, "/connect/authorize?"+url.Values{
		"client_id":     {app.ID},
		"redirect_uri":  {"https://app.example.com/cb"},
		"response_type": {"code"},
		"scope":         {"openid profile"},
		"state":         {"xyz"},
	}.Encode(), nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, authorizeReq)
	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "xyz", redirect.Query().Get("state"))
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)

	tokenReq := httptest.NewRequest(http.MethodPost, "/connect/token", strings.NewReader(url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {app.ID},
		"client_secret": {"s3cr3t"},
		"code":         {code},
		"redirect_uri": {"https://app.example.com/cb"},
	}.Encode()))
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenRec := httptest.NewRecorder()
	srv.ServeHTTP(tokenRec, tokenReq)
	require.Equal(t, http.StatusOK, tokenRec.Code)

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		IDToken     string `json:"id_token"`
	}
	require.NoError(t, json.Unmarshal(tokenRec.Body.Bytes(), &tokenResp))
	require.NotEmpty(t, tokenResp.AccessToken)
	require.Equal(t, "Bearer", tokenResp.TokenType)
	require.NotEmpty(t, tokenResp.IDToken)

	userinfoReq := httptest.NewRequest(http.MethodGet, "/connect/userinfo", nil)
	userinfoReq.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	userinfoRec := httptest.NewRecorder()
	srv.ServeHTTP(userinfoRec, userinfoReq)
	require.Equal(t, http.StatusOK, userinfoRec.Code)

	var claims map[string]any
	require.NoError(t, json.Unmarshal(userinfoRec.Body.Bytes(), &claims))
	require.Equal(t, "user-1", claims["sub"])

	introspectReq := httptest.NewRequest(http.MethodPost, "/connect/introspect", strings.NewReader(url.Values{
		"client_id":     {app.ID},
		"client_secret": {"s3cr3t"},
		"token":         {tokenResp.AccessToken},
	}.Encode()))
	introspectReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	introspectRec := httptest.NewRecorder()
	srv.ServeHTTP(introspectRec, introspectReq)
	require.Equal(t, http.StatusOK, introspectRec.Code)

	var introspectResp struct {
		Active bool `json:"active"`
	}
	require.NoError(t, json.Unmarshal(introspectRec.Body.Bytes(), &introspectResp))
	require.True(t, introspectResp.Active)

	revokeReq := httptest.NewRequest(http.MethodPost, "/connect/revoke", strings.NewReader(url.Values{
		"client_id":     {app.ID},
		"client_secret": {"s3cr3t"},
		"token":         {tokenResp.AccessToken},
	}.Encode()))
	revokeReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	revokeRec := httptest.NewRecorder()
	srv.ServeHTTP(revokeRec, revokeReq)
	require.Equal(t, http.StatusOK, revokeRec.Code)

	postRevokeIntrospectReq := httptest.NewRequest(http.MethodPost, "/connect/introspect", strings.NewReader(url.Values{
		"client_id":     {app.ID},
		"client_secret": {"s3cr3t"},
		"token":         {tokenResp.AccessToken},
	}.Encode()))
	postRevokeIntrospectReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postRevokeIntrospectRec := httptest.NewRecorder()
	srv.ServeHTTP(postRevokeIntrospectRec, postRevokeIntrospectReq)
	require.Equal(t, http.StatusOK, postRevokeIntrospectRec.Code)
	var postRevoke struct {
		Active bool `json:"active"`
	}
	require.NoError(t, json.Unmarshal(postRevokeIntrospectRec.Body.Bytes(), &postRevoke))
	require.False(t, postRevoke.Active)
}

func TestDiscoveryAndJWKSEndpoints(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv, _, _ := newTestServer(t, clock)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Issuer        string `json:"issuer"`
		TokenEndpoint string `json:"token_endpoint"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "https://issuer.example", doc.Issuer)
	require.Equal(t, "https://issuer.example/connect/token", doc.TokenEndpoint)

	jwksReq := httptest.NewRequest(http.MethodGet, "/.well-known/jwks", nil)
	jwksRec := httptest.NewRecorder()
	srv.ServeHTTP(jwksRec, jwksReq)
	require.Equal(t, http.StatusOK, jwksRec.Code)
}

func TestLogoutRedirectsToValidatedPostLogoutURI(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv, _, app := newTestServer(t, clock)

	req := httptest.NewRequest(http.MethodGet, "/connect/logout?"+url.Values{
		"client_id":                 {app.ID},
		"post_logout_redirect_uri": {"https://app.example.com/logged-out"},
		"state":                     {"done"},
	}.Encode(), nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/logged-out", redirect.Path)
	require.Equal(t, "done", redirect.Query().Get("state"))
}
