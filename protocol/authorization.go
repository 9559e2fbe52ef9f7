package protocol

import (
	"context"
	"net/url"
	"time"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/storage"
)

// Authorization endpoint context types, per spec.md §4.4.
const (
	CtxValidateAuthorizationRequest pipeline.ContextType = "authorization.validate"
	CtxHandleAuthorizationRequest   pipeline.ContextType = "authorization.handle"
	CtxApplyAuthorizationResponse   pipeline.ContextType = "authorization.apply_response"
	CtxProcessSignin                pipeline.ContextType = "authorization.process_signin"
)

// AuthorizationValidateContext carries the authorization request through its twelve validation
// gates. ValidatedRedirectURI is populated on success, per spec.md §4.4's "On validate success".
type AuthorizationValidateContext struct {
	pipeline.BaseValidatingClientContext
	ValidatedRedirectURI *url.URL
}

func NewAuthorizationValidateContext(tx *oauth2tx.Transaction) *AuthorizationValidateContext {
	return &AuthorizationValidateContext{
		BaseValidatingClientContext: pipeline.NewBaseValidatingClientContext(CtxValidateAuthorizationRequest, tx),
	}
}

// AuthorizationHandleContext carries the result of authenticating and consenting the end-user.
// The host (interactive UI, passthrough, or programmatic grant) sets Subject before dispatch; the
// handle stage fails with a ConfigurationError when Subject is empty and otherwise marks the
// context handled itself, per spec.md §4.4's "On handle".
type AuthorizationHandleContext struct {
	pipeline.BaseRequestContext
	Application *storage.Application

	Subject         string
	GrantedScopes   []string
	AuthorizationID string

	Authorization storage.Authorization
	Code          storage.Token
}

func NewAuthorizationHandleContext(tx *oauth2tx.Transaction, app *storage.Application) *AuthorizationHandleContext {
	return &AuthorizationHandleContext{
		BaseRequestContext: pipeline.NewBaseRequestContext(CtxHandleAuthorizationRequest, tx),
		Application:        app,
	}
}

// authValidationHandler adapts a plain validation function to pipeline.Handler, casting the
// generic pipeline.Context down to *AuthorizationValidateContext once per call. It threads the
// dispatch ctx through to f so gates that hit the store (scope/client lookups) honor cancellation
// the same way every other endpoint's validation chain does.
type authValidationHandler func(ctx context.Context, rc *AuthorizationValidateContext)

func (f authValidationHandler) Handle(ctx context.Context, rc pipeline.Context) error {
	f(ctx, rc.(*AuthorizationValidateContext))
	return nil
}

// RegisterAuthorizationHandlers wires the twelve ordered validation gates, the handle stage, and
// the apply-response stage into d.
//
// Client identity and redirect_uri matching run immediately after the mandatory-parameter gate,
// ahead of every other content gate (response_type, response_mode, nonce, prompt, PKCE, scope
// existence, permissions). That way ValidatedRedirectURI is already set by the time any of those
// later gates can reject, so writeAuthorizationError redirects the error instead of rendering it
// directly — matching how a real authorization server resolves the client and redirect_uri before
// validating the rest of the request.
func RegisterAuthorizationHandlers(d *pipeline.Dispatcher, apps *manager.ApplicationManager, scopes *manager.ScopeManager) {
	register := func(order int, name string, f authValidationHandler) {
		d.Register(pipeline.HandlerDescriptor{
			Name:        name,
			ContextType: CtxValidateAuthorizationRequest,
			Order:       order,
			Required:    true,
			Factory:     func() pipeline.Handler { return f },
		})
	}

	// 1. Unsupported-parameter gate.
	register(10, "reject-request-object-parameters", func(_ context.Context, rc *AuthorizationValidateContext) {
		if rc.Request.Has("request") {
			rc.RejectWithCode(ErrRequestNotSupported, "the request parameter is not supported")
			return
		}
		if rc.Request.Has("request_uri") {
			rc.RejectWithCode(ErrRequestURINotSupported, "the request_uri parameter is not supported")
		}
	})

	// 2. Mandatory parameters.
	register(20, "validate-mandatory-parameters", func(_ context.Context, rc *AuthorizationValidateContext) {
		if rc.Request.ClientID() == "" {
			rc.RejectWithCode(ErrInvalidRequest, "client_id is required")
			return
		}
		redirectURI := rc.Request.RedirectURI()
		if redirectURI == "" {
			if rc.Request.HasScope("openid") {
				rc.RejectWithCode(ErrInvalidRequest, "redirect_uri is required for OpenID Connect requests")
			}
			return
		}
		u, err := url.Parse(redirectURI)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			rc.RejectWithCode(ErrInvalidRequest, "redirect_uri must be an absolute URL with no fragment")
		}
	})

	// 3. Client identity. Resolved early so every content gate below it can redirect its
	// rejection once the redirect_uri gate (next) has matched it against the client.
	register(30, "validate-client-identity", func(ctx context.Context, rc *AuthorizationValidateContext) {
		if rc.Transaction.Options.DegradedMode {
			return
		}
		app, err := apps.FindByID(ctx, rc.Request.ClientID())
		if err != nil {
			rc.RejectWithCode(ErrInvalidRequest, "client_id does not resolve to a known application")
			return
		}
		rc.Application = &app
	})

	// 4. Redirect URI match. Sets ValidatedRedirectURI as soon as the client is known, so that
	// every gate after this one can have its rejection delivered as a redirect.
	register(40, "validate-redirect-uri", func(_ context.Context, rc *AuthorizationValidateContext) {
		if rc.Application == nil {
			return
		}
		redirectURI := rc.Request.RedirectURI()
		if redirectURI == "" {
			return
		}
		if !rc.Application.HasRedirectURI(redirectURI) {
			rc.RejectWithCode(ErrInvalidRequest, "redirect_uri is not registered for this client")
			return
		}
		u, _ := url.Parse(redirectURI)
		rc.ValidatedRedirectURI = u
		rc.Transaction.SetValidatedRedirectURI(u)
	})

	// 5. response_type gate.
	register(50, "validate-response-type", func(_ context.Context, rc *AuthorizationValidateContext) {
		if rc.Request.ResponseType() == "" {
			rc.RejectWithCode(ErrInvalidRequest, "response_type is required")
			return
		}
		if rc.Request.HasResponseType("id_token") && !rc.Request.HasScope("openid") {
			rc.RejectWithCode(ErrInvalidRequest, "response_type id_token requires the openid scope")
			return
		}
		opts := rc.Transaction.Options
		switch {
		case rc.Request.IsAuthorizationCodeFlow():
			if !opts.EndpointEnabled(oauth2tx.EndpointToken) {
				rc.RejectWithCode(ErrUnsupportedResponseType, "the token endpoint is disabled")
				return
			}
		case rc.Request.IsImplicitFlow(), rc.Request.IsHybridFlow():
		default:
			rc.RejectWithCode(ErrUnsupportedResponseType, "response_type does not match a known flow")
			return
		}
		if !opts.ResponseTypeEnabled(rc.Request.ResponseType()) {
			rc.RejectWithCode(ErrUnsupportedResponseType, "response_type is not enabled")
			return
		}
		if rc.Request.HasScope("offline_access") && !opts.GrantTypeEnabled(GrantRefreshToken) {
			rc.RejectWithCode(ErrInvalidRequest, "offline_access requires the refresh_token grant to be enabled")
		}
	})

	// 6. response_mode gate.
	register(60, "validate-response-mode", func(_ context.Context, rc *AuthorizationValidateContext) {
		mode := rc.Request.ResponseMode()
		if mode == ResponseModeQuery && (rc.Request.HasResponseType("id_token") || rc.Request.HasResponseType("token")) {
			rc.RejectWithCode(ErrInvalidRequest, "response_mode=query is not allowed with a token or id_token response_type")
			return
		}
		switch mode {
		case "", ResponseModeQuery, ResponseModeFragment, ResponseModeFormPost:
		default:
			rc.RejectWithCode(ErrInvalidRequest, "unrecognized response_mode")
		}
	})

	// 7. Nonce gate.
	register(70, "validate-nonce", func(_ context.Context, rc *AuthorizationValidateContext) {
		if (rc.Request.IsImplicitFlow() || rc.Request.IsHybridFlow()) && rc.Request.HasScope("openid") && rc.Request.Nonce() == "" {
			rc.RejectWithCode(ErrInvalidRequest, "nonce is required for implicit and hybrid OpenID Connect requests")
		}
	})

	// 8. Prompt gate.
	register(80, "validate-prompt", func(_ context.Context, rc *AuthorizationValidateContext) {
		if rc.Request.HasPromptValue("none") {
			for _, v := range []string{"login", "consent", "select_account"} {
				if rc.Request.HasPromptValue(v) {
					rc.RejectWithCode(ErrInvalidRequest, "prompt=none cannot be combined with "+v)
					return
				}
			}
		}
	})

	// 9. PKCE gate.
	register(90, "validate-pkce", func(_ context.Context, rc *AuthorizationValidateContext) {
		if rc.Request.CodeChallengeMethod() == "" {
			return
		}
		if rc.Request.CodeChallenge() == "" {
			rc.RejectWithCode(ErrInvalidRequest, "code_challenge is required when code_challenge_method is present")
			return
		}
		if !rc.Request.HasResponseType("code") || rc.Request.HasResponseType("token") {
			rc.RejectWithCode(ErrInvalidRequest, "PKCE requires a code-only response_type")
			return
		}
		switch rc.Request.CodeChallengeMethod() {
		case "plain", "S256":
		default:
			rc.RejectWithCode(ErrInvalidRequest, "code_challenge_method must be plain or S256")
		}
	})

	// 10. Scope existence.
	register(100, "validate-scope-existence", func(ctx context.Context, rc *AuthorizationValidateContext) {
		opts := rc.Transaction.Options
		if !opts.ScopeValidationEnabled || opts.DegradedMode {
			return
		}
		for _, s := range rc.Request.GetScopes() {
			if _, err := scopes.FindByName(ctx, s); err != nil {
				rc.RejectWithCode(ErrInvalidScope, "scope "+s+" is not registered")
				return
			}
		}
	})

	// 11. Client-type compatibility.
	register(110, "validate-client-type-compatibility", func(_ context.Context, rc *AuthorizationValidateContext) {
		if rc.Application == nil {
			return
		}
		if rc.Request.HasResponseType("token") && !rc.Application.IsPublic() {
			rc.RejectWithCode(ErrUnauthorizedClient, "confidential clients may not use the token response_type")
		}
	})

	// 12. Endpoint / grant-type / scope permissions.
	register(120, "validate-permissions", func(_ context.Context, rc *AuthorizationValidateContext) {
		if rc.Application == nil {
			return
		}
		opts := rc.Transaction.Options
		if opts.RequireEndpointPermission && !rc.Application.HasPermission(PermissionEndpointPrefix+"authorization") {
			rc.RejectWithCode(ErrUnauthorizedClient, "client is not permitted to use the authorization endpoint")
			return
		}
		if opts.RequireScopePermission {
			for _, s := range rc.Request.GetScopes() {
				if !rc.Application.HasPermission(PermissionScopePrefix + s) {
					rc.RejectWithCode(ErrInvalidScope, "client is not permitted to request scope "+s)
					return
				}
			}
		}
	})

	d.Register(pipeline.HandlerDescriptor{
		Name:        "process-signin",
		ContextType: CtxHandleAuthorizationRequest,
		Order:       100,
		Required:    true,
		Factory: func() pipeline.Handler {
			return pipeline.HandlerFunc(handleAuthorizationRequest)
		},
	})
}

// handleAuthorizationRequest checks that a principal (Subject) has been attached to the context
// and marks it handled, per spec.md §4.4's "On handle". It persists nothing itself: the
// Authorization and the authorization_code Token are created afterwards by NewAuthorizationCode.
func handleAuthorizationRequest(ctx context.Context, pc pipeline.Context) error {
	rc := pc.(*AuthorizationHandleContext)
	if rc.Subject == "" {
		return &pipeline.ConfigurationError{Message: "no handler attached a principal to the authorization request"}
	}
	rc.MarkHandled()
	return nil
}

// AuthorizationResult is the outcome handed to apply-response: either a redirect carrying the
// granted artifacts, or the protocol error to render at the redirect_uri (or, absent one, as a
// direct error response).
type AuthorizationResult struct {
	RedirectURI  *url.URL
	ResponseMode string
	Parameters   map[string]string
}

// ApplyAuthorizationResponse builds the redirect per spec.md §4.4's "On apply-response": response
// mode inferred from response_type when not explicit, state echoed, parameters attached.
func ApplyAuthorizationResponse(rc *AuthorizationValidateContext, params map[string]string) AuthorizationResult {
	mode := rc.Request.ResponseMode()
	if mode == "" {
		switch {
		case rc.Request.IsHybridFlow():
			// Hybrid responses carry both a code and a token/id_token; form_post avoids
			// exposing them in a fragment shared via browser history or referrer leaks.
			mode = ResponseModeFormPost
		case rc.Request.HasResponseType("token") || rc.Request.HasResponseType("id_token"):
			mode = ResponseModeFragment
		default:
			mode = ResponseModeQuery
		}
	}
	if params == nil {
		params = map[string]string{}
	}
	if state := rc.Request.State(); state != "" {
		params["state"] = state
	}
	return AuthorizationResult{RedirectURI: rc.ValidatedRedirectURI, ResponseMode: mode, Parameters: params}
}

// NewAuthorizationCode issues a fresh Authorization and its bound authorization_code Token for a
// successfully validated and consented request, per spec.md §8 scenario 1.
func NewAuthorizationCode(ctx context.Context, authz *manager.AuthorizationManager, tokens *manager.TokenManager, applicationID, subject string, scopes []string, codeChallenge, codeChallengeMethod, redirectURI string, now time.Time) (storage.Authorization, storage.Token, error) {
	a, err := authz.Create(ctx, manager.AuthorizationDescriptor{
		ApplicationID: applicationID,
		Subject:       subject,
		Status:        storage.AuthorizationValid,
		Type:          storage.AuthorizationPermanent,
		Scopes:        scopes,
	})
	if err != nil {
		return storage.Authorization{}, storage.Token{}, err
	}

	props := map[string]string{"redirect_uri": redirectURI}
	if codeChallenge != "" {
		props["code_challenge"] = codeChallenge
		if codeChallengeMethod == "" {
			codeChallengeMethod = "plain"
		}
		props["code_challenge_method"] = codeChallengeMethod
	}

	code, err := tokens.Create(ctx, manager.TokenDescriptor{
		ReferenceID:     storage.NewToken(),
		ApplicationID:   applicationID,
		AuthorizationID: a.ID,
		Subject:         subject,
		Type:            storage.TokenAuthorizationCode,
		ExpirationDate:  now.Add(5 * time.Minute),
		Properties:      props,
	})
	if err != nil {
		return storage.Authorization{}, storage.Token{}, err
	}
	return a, code, nil
}
