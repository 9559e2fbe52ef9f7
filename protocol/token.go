package protocol

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/storage"
	"github.com/coreoidc/authd/token"
)

// Token endpoint context types, per spec.md §4.4.
const (
	CtxValidateTokenRequest pipeline.ContextType = "token.validate"
	CtxHandleTokenRequest   pipeline.ContextType = "token.handle"
)

// TokenValidateContext carries the token request through grant-type, client-authentication, and
// grant-specific validation.
type TokenValidateContext struct {
	pipeline.BaseValidatingClientContext

	// ClientAuthenticated records whether client authentication succeeded, for handlers further
	// down the chain that need to know without re-deriving it.
	ClientAuthenticated bool

	// Code and Authorization are populated by the authorization_code grant's validation handler so
	// the handle stage doesn't need to re-fetch them.
	Code          *storage.Token
	Authorization *storage.Authorization

	// RefreshToken is populated by the refresh_token grant's validation handler.
	RefreshToken *storage.Token
}

func NewTokenValidateContext(tx *oauth2tx.Transaction) *TokenValidateContext {
	return &TokenValidateContext{
		BaseValidatingClientContext: pipeline.NewBaseValidatingClientContext(CtxValidateTokenRequest, tx),
	}
}

type tokenValidationHandler func(ctx context.Context, rc *TokenValidateContext, apps *manager.ApplicationManager, authz *manager.AuthorizationManager, tokens *manager.TokenManager)

// RegisterTokenHandlers wires the token endpoint's validation chain, per spec.md §4.4's "Token
// endpoint" section.
func RegisterTokenHandlers(d *pipeline.Dispatcher, apps *manager.ApplicationManager, authz *manager.AuthorizationManager, tokens *manager.TokenManager) {
	register := func(order int, name string, f tokenValidationHandler) {
		d.Register(pipeline.HandlerDescriptor{
			Name:        name,
			ContextType: CtxValidateTokenRequest,
			Order:       order,
			Required:    true,
			Factory: func() pipeline.Handler {
				return pipeline.HandlerFunc(func(ctx context.Context, pc pipeline.Context) error {
					f(ctx, pc.(*TokenValidateContext), apps, authz, tokens)
					return nil
				})
			},
		})
	}

	register(10, "validate-grant-type", func(ctx context.Context, rc *TokenValidateContext, apps *manager.ApplicationManager, authz *manager.AuthorizationManager, tokens *manager.TokenManager) {
		switch rc.Request.GrantType() {
		case GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials, GrantPassword, GrantDeviceCode:
		case "":
			rc.RejectWithCode(ErrInvalidRequest, "grant_type is required")
			return
		default:
			rc.RejectWithCode(ErrUnsupportedGrantType, "grant_type is not recognized")
			return
		}
		if !rc.Transaction.Options.GrantTypeEnabled(rc.Request.GrantType()) {
			rc.RejectWithCode(ErrUnsupportedGrantType, "grant_type is not enabled")
		}
	})

	register(20, "authenticate-client", func(ctx context.Context, rc *TokenValidateContext, apps *manager.ApplicationManager, authz *manager.AuthorizationManager, tokens *manager.TokenManager) {
		clientID := rc.Request.ClientID()
		if clientID == "" {
			rc.RejectWithCode(ErrInvalidClient, "client_id is required")
			return
		}
		app, err := apps.FindByID(ctx, clientID)
		if err != nil {
			rc.RejectWithCode(ErrInvalidClient, "client_id does not resolve to a known application")
			return
		}
		rc.Application = &app

		secret := rc.Request.ClientSecret()
		if app.IsPublic() {
			if secret != "" {
				rc.RejectWithCode(ErrInvalidClient, "public clients must not send a client_secret")
				return
			}
			rc.ClientAuthenticated = true
			return
		}
		if secret == "" || !apps.ValidateClientSecret(app, secret) {
			rc.RejectWithCode(ErrInvalidClient, "client authentication failed")
			return
		}
		rc.ClientAuthenticated = true
	})

	register(30, "validate-authorization-code-grant", func(ctx context.Context, rc *TokenValidateContext, apps *manager.ApplicationManager, authz *manager.AuthorizationManager, tokens *manager.TokenManager) {
		if rc.IsRejected() || rc.Request.GrantType() != GrantAuthorizationCode {
			return
		}
		code := rc.Request.Code()
		if code == "" {
			rc.RejectWithCode(ErrInvalidRequest, "code is required")
			return
		}
		tok, err := tokens.FindByReferenceID(ctx, code)
		if err != nil || tok.Type != storage.TokenAuthorizationCode {
			rc.RejectWithCode(ErrInvalidGrant, "code is invalid or unknown")
			return
		}
		if tok.ApplicationID != rc.Application.ID {
			rc.RejectWithCode(ErrInvalidGrant, "code was not issued to this client")
			return
		}
		if tok.Properties["redirect_uri"] != rc.Request.RedirectURI() {
			rc.RejectWithCode(ErrInvalidGrant, "redirect_uri does not match the one used to obtain the code")
			return
		}
		if challenge := tok.Properties["code_challenge"]; challenge != "" {
			if !verifyPKCE(challenge, tok.Properties["code_challenge_method"], rc.Request.CodeVerifier()) {
				rc.RejectWithCode(ErrInvalidGrant, "code_verifier does not match the stored code_challenge")
				return
			}
		}
		a, err := authz.FindByID(ctx, tok.AuthorizationID)
		if err != nil {
			rc.RejectWithCode(ErrInvalidGrant, "the code's authorization no longer exists")
			return
		}
		rc.Code = &tok
		rc.Authorization = &a
	})

	register(40, "validate-refresh-token-grant", func(ctx context.Context, rc *TokenValidateContext, apps *manager.ApplicationManager, authz *manager.AuthorizationManager, tokens *manager.TokenManager) {
		if rc.IsRejected() || rc.Request.GrantType() != GrantRefreshToken {
			return
		}
		rt := rc.Request.RefreshToken()
		if rt == "" {
			rc.RejectWithCode(ErrInvalidRequest, "refresh_token is required")
			return
		}
		tok, err := tokens.FindByReferenceID(ctx, rt)
		if err != nil || tok.Type != storage.TokenRefresh {
			rc.RejectWithCode(ErrInvalidGrant, "refresh_token is invalid or unknown")
			return
		}
		if tok.ApplicationID != rc.Application.ID {
			rc.RejectWithCode(ErrInvalidGrant, "refresh_token was not issued to this client")
			return
		}
		if !tok.IsValid(rc.Transaction.Options.Now()) {
			rc.RejectWithCode(ErrInvalidGrant, "refresh_token is expired or revoked")
			return
		}
		a, err := authz.FindByID(ctx, tok.AuthorizationID)
		if err != nil {
			rc.RejectWithCode(ErrInvalidGrant, "the refresh_token's authorization no longer exists")
			return
		}
		rc.RefreshToken = &tok
		rc.Authorization = &a
	})

	register(50, "validate-grant-type-permission", func(ctx context.Context, rc *TokenValidateContext, apps *manager.ApplicationManager, authz *manager.AuthorizationManager, tokens *manager.TokenManager) {
		if rc.IsRejected() || rc.Application == nil || !rc.Transaction.Options.RequireGrantTypePermission {
			return
		}
		if !rc.Application.HasPermission(PermissionGrantTypePrefix + rc.Request.GrantType()) {
			rc.RejectWithCode(ErrUnauthorizedClient, "client is not permitted to use this grant_type")
		}
	})

	d.Register(pipeline.HandlerDescriptor{
		Name:        "redeem-and-issue",
		ContextType: CtxHandleTokenRequest,
		Order:       100,
		Required:    true,
		Factory: func() pipeline.Handler {
			return pipeline.HandlerFunc(func(ctx context.Context, pc pipeline.Context) error {
				rc := pc.(*TokenHandleContext)
				return handleTokenRequest(ctx, rc, tokens)
			})
		},
	})
}

func verifyPKCE(challenge, method, verifier string) bool {
	if verifier == "" {
		return false
	}
	switch method {
	case "", "plain":
		return verifier == challenge
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]) == challenge
	default:
		return false
	}
}

// TokenHandleContext carries the authenticated, validated token request into the issuance stage.
type TokenHandleContext struct {
	pipeline.BaseRequestContext
	Validated *TokenValidateContext

	AccessToken  storage.Token
	RefreshToken storage.Token
	Code         storage.Token

	// IssuedAccessToken and IssuedIdentityToken hold the signed JWT wire values, populated only
	// when the transaction's Options.Serializer is configured.
	IssuedAccessToken   string
	IssuedIdentityToken string
}

func NewTokenHandleContext(tx *oauth2tx.Transaction, validated *TokenValidateContext) *TokenHandleContext {
	return &TokenHandleContext{
		BaseRequestContext: pipeline.NewBaseRequestContext(CtxHandleTokenRequest, tx),
		Validated:          validated,
	}
}

// handleTokenRequest redeems an authorization_code grant's code atomically (first caller wins,
// per spec.md §4.4 and the redeem-twice property in §8), signs the access and identity tokens
// when a serializer is configured, persists an access-token record keyed by the issued value so
// introspection and revocation can find it, and marks the context handled.
func handleTokenRequest(ctx context.Context, rc *TokenHandleContext, tokens *manager.TokenManager) error {
	var authorization *storage.Authorization
	var issueRefreshToken bool
	switch {
	case rc.Validated.Code != nil:
		if _, err := tokens.Redeem(ctx, rc.Validated.Code.ID, rc.Transaction.Options.Now()); err != nil {
			rc.Reject(&pipeline.ProtocolError{Code: ErrInvalidGrant, Description: "code has already been redeemed"})
			return nil
		}
		authorization = rc.Validated.Authorization
		issueRefreshToken = authorization != nil && hasScope(authorization.Scopes, "offline_access")
	case rc.Validated.RefreshToken != nil:
		authorization = rc.Validated.Authorization
		rc.RefreshToken = *rc.Validated.RefreshToken
	}
	if authorization == nil || rc.Validated.Application == nil {
		// Nothing to issue (grants other than authorization_code and refresh_token): the context
		// stays unhandled so the caller reports that the grant could not be completed.
		return nil
	}

	now := rc.Transaction.Options.Now()
	accessExpiry := now.Add(rc.Transaction.Options.AccessTokenLifetime)
	scope := strings.Join(authorization.Scopes, " ")
	audience := allowedAudiences(rc.Validated.Application, rc.Request.Audiences())

	accessReference := rc.IssuedAccessToken
	if ser := rc.Transaction.Options.Serializer; ser != nil {
		access, err := ser.SerializeAccessToken(token.Principal{
			Subject:         authorization.Subject,
			Issuer:          rc.Transaction.Issuer,
			Audience:        rc.Validated.Application.ID,
			ApplicationID:   rc.Validated.Application.ID,
			AuthorizationID: authorization.ID,
			Scopes:          authorization.Scopes,
			IssuedAt:        now,
			ExpiresAt:       accessExpiry,
		})
		if err != nil {
			return err
		}
		rc.IssuedAccessToken = access
		accessReference = access

		if hasScope(authorization.Scopes, "openid") {
			idToken, err := ser.SerializeIdentityToken(token.Principal{
				Subject:         authorization.Subject,
				Issuer:          rc.Transaction.Issuer,
				Audience:        rc.Validated.Application.ID,
				ApplicationID:   rc.Validated.Application.ID,
				AuthorizationID: authorization.ID,
				Scopes:          authorization.Scopes,
				IssuedAt:        now,
				ExpiresAt:       now.Add(rc.Transaction.Options.IdentityTokenLifetime),
			})
			if err != nil {
				return err
			}
			rc.IssuedIdentityToken = idToken
		}
	} else {
		accessReference = storage.NewToken()
	}

	access, err := tokens.Create(ctx, manager.TokenDescriptor{
		ReferenceID:     accessReference,
		ApplicationID:   rc.Validated.Application.ID,
		AuthorizationID: authorization.ID,
		Subject:         authorization.Subject,
		Type:            storage.TokenAccess,
		ExpirationDate:  accessExpiry,
		Properties:      accessTokenProperties(scope, audience),
	})
	if err != nil {
		return err
	}
	rc.AccessToken = access

	if issueRefreshToken {
		var refreshExpiry time.Time
		if lifetime := rc.Transaction.Options.RefreshTokenLifetime; lifetime > 0 {
			refreshExpiry = now.Add(lifetime)
		}
		refresh, err := tokens.Create(ctx, manager.TokenDescriptor{
			ReferenceID:     storage.NewToken(),
			ApplicationID:   rc.Validated.Application.ID,
			AuthorizationID: authorization.ID,
			Subject:         authorization.Subject,
			Type:            storage.TokenRefresh,
			ExpirationDate:  refreshExpiry,
			Properties:      map[string]string{"scope": scope},
		})
		if err != nil {
			return err
		}
		rc.RefreshToken = refresh
	}

	rc.MarkHandled()
	return nil
}

// allowedAudiences filters the client's requested "resource"/"audience" values down to the peer
// client IDs app is trusted to mint tokens for, per storage.Application's "aud:<client_id>"
// permission convention. Tokens carrying these as a space-joined Properties["audience"] let
// introspection (§4.4) recognize a caller other than the issuing client as a valid audience.
func allowedAudiences(app *storage.Application, requested []string) string {
	if app == nil || len(requested) == 0 {
		return ""
	}
	var allowed []string
	for _, aud := range requested {
		if app.HasPermission(PermissionAudiencePrefix + aud) {
			allowed = append(allowed, aud)
		}
	}
	return strings.Join(allowed, " ")
}

func accessTokenProperties(scope, audience string) map[string]string {
	props := map[string]string{"scope": scope}
	if audience != "" {
		props["audience"] = audience
	}
	return props
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
