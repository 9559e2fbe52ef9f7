package protocol

import (
	"context"
	"strings"

	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"

	"github.com/coreoidc/authd/manager"
)

// CtxHandleUserinfoRequest is the userinfo endpoint's context type.
const CtxHandleUserinfoRequest pipeline.ContextType = "userinfo.handle"

// scopeClaims maps a granted scope to the OIDC standard claims it unlocks, per spec.md §4.4's
// userinfo claims table.
var scopeClaims = map[string][]string{
	"profile": {"name", "family_name", "given_name", "preferred_username", "profile", "website", "birthdate"},
	"email":   {"email", "email_verified"},
	"phone":   {"phone_number", "phone_number_verified"},
	"address": {"address"},
}

// UserinfoContext carries the bearer-authenticated userinfo request and the claims the access
// token's scopes unlock, to be populated by a host handler that knows how to look up a subject's
// profile data (out of core scope, per spec.md §9's "Pass-through mode").
type UserinfoContext struct {
	pipeline.BaseRequestContext
	Subject       string
	AllowedClaims []string
}

func NewUserinfoContext(tx *oauth2tx.Transaction) *UserinfoContext {
	return &UserinfoContext{BaseRequestContext: pipeline.NewBaseRequestContext(CtxHandleUserinfoRequest, tx)}
}

// AllowedClaimsForScopes returns the union of claims unlocked by scopes, per the table in
// spec.md §4.4. The subject claim is always included.
func AllowedClaimsForScopes(scopes []string) []string {
	claims := []string{"sub"}
	for _, s := range scopes {
		claims = append(claims, scopeClaims[s]...)
	}
	return claims
}

// RegisterUserinfoHandlers wires the userinfo endpoint's bearer-token validation. Claim
// population itself is left to a host-attached handler at a higher Order, per
// spec.md §9's pass-through-mode note.
func RegisterUserinfoHandlers(d *pipeline.Dispatcher, tokens *manager.TokenManager) {
	d.Register(pipeline.HandlerDescriptor{
		Name:        "validate-bearer-access-token",
		ContextType: CtxHandleUserinfoRequest,
		Order:       10,
		Required:    true,
		Factory: func() pipeline.Handler {
			return pipeline.HandlerFunc(func(ctx context.Context, pc pipeline.Context) error {
				rc := pc.(*UserinfoContext)
				validateUserinfoBearerToken(ctx, rc, tokens)
				return nil
			})
		},
	})
}

func validateUserinfoBearerToken(ctx context.Context, rc *UserinfoContext, tokens *manager.TokenManager) {
	bearer := rc.Request.AccessToken()
	if bearer == "" {
		rc.Reject(&pipeline.ProtocolError{Code: ErrInvalidRequest, Description: "a bearer access token is required"})
		return
	}
	tok, err := tokens.FindByReferenceID(ctx, bearer)
	if err != nil {
		rc.Reject(&pipeline.ProtocolError{Code: ErrInvalidRequest, Description: "access token is invalid"})
		return
	}
	if !tok.IsValid(rc.Transaction.Options.Now()) {
		rc.Reject(&pipeline.ProtocolError{Code: ErrInvalidRequest, Description: "access token is expired or revoked"})
		return
	}
	rc.Subject = tok.Subject
	rc.AllowedClaims = AllowedClaimsForScopes(strings.Fields(tok.Properties["scope"]))
}
