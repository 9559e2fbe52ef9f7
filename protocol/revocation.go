package protocol

import (
	"context"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/storage"
)

// CtxHandleRevocationRequest is the revocation endpoint's context type.
const CtxHandleRevocationRequest pipeline.ContextType = "revocation.handle"

// RevocationContext carries the revocation request. Revocation always reports success to the
// caller (spec.md §6: "Always 200 on success") whether or not a matching token existed.
type RevocationContext struct {
	pipeline.BaseValidatingClientContext
}

func NewRevocationContext(tx *oauth2tx.Transaction) *RevocationContext {
	return &RevocationContext{
		BaseValidatingClientContext: pipeline.NewBaseValidatingClientContext(CtxHandleRevocationRequest, tx),
	}
}

// RegisterRevocationHandlers wires the revocation endpoint, per spec.md §4.4's "Revocation
// endpoint" section: revoking a refresh token cascades to every access token derived from it.
func RegisterRevocationHandlers(d *pipeline.Dispatcher, apps *manager.ApplicationManager, tokens *manager.TokenManager) {
	d.Register(pipeline.HandlerDescriptor{
		Name:        "authenticate-and-revoke",
		ContextType: CtxHandleRevocationRequest,
		Order:       10,
		Required:    true,
		Factory: func() pipeline.Handler {
			return pipeline.HandlerFunc(func(ctx context.Context, pc pipeline.Context) error {
				rc := pc.(*RevocationContext)
				revoke(ctx, rc, apps, tokens)
				return nil
			})
		},
	})
}

func revoke(ctx context.Context, rc *RevocationContext, apps *manager.ApplicationManager, tokens *manager.TokenManager) {
	clientID := rc.Request.ClientID()
	app, err := apps.FindByID(ctx, clientID)
	if err != nil {
		rc.RejectWithCode(ErrInvalidClient, "client_id does not resolve to a known application")
		return
	}
	if !app.IsPublic() && !apps.ValidateClientSecret(app, rc.Request.ClientSecret()) {
		rc.RejectWithCode(ErrInvalidClient, "client authentication failed")
		return
	}
	rc.Application = &app

	value := rc.Request.GetString("token")
	if value == "" {
		rc.MarkHandled()
		return
	}
	tok, err := tokens.FindByReferenceID(ctx, value)
	if err != nil || tok.ApplicationID != app.ID {
		rc.MarkHandled()
		return
	}
	_ = tokens.Revoke(ctx, tok.ID)

	if tok.Type == storage.TokenRefresh {
		derived, err := tokens.ListByAuthorization(ctx, tok.AuthorizationID)
		if err == nil {
			for _, d := range derived {
				if d.Type == storage.TokenAccess {
					_ = tokens.Revoke(ctx, d.ID)
				}
			}
		}
	}
	rc.MarkHandled()
}
