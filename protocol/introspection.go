package protocol

import (
	"context"
	"strings"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/storage"
)

// CtxHandleIntrospectionRequest is the introspection endpoint's single context type: there is no
// separate validate stage; the handler authenticates the calling client itself before looking
// the token up.
const CtxHandleIntrospectionRequest pipeline.ContextType = "introspection.handle"

// IntrospectionContext carries the introspection request and its result.
type IntrospectionContext struct {
	pipeline.BaseValidatingClientContext
	Active bool
	Token  *storage.Token
}

func NewIntrospectionContext(tx *oauth2tx.Transaction) *IntrospectionContext {
	return &IntrospectionContext{
		BaseValidatingClientContext: pipeline.NewBaseValidatingClientContext(CtxHandleIntrospectionRequest, tx),
	}
}

// RegisterIntrospectionHandlers wires the introspection endpoint, per spec.md §4.4's
// "Introspection endpoint" section: active=false is returned (never a wire error) for every
// token the caller isn't authorized to inspect, rather than leaking which branch failed.
func RegisterIntrospectionHandlers(d *pipeline.Dispatcher, apps *manager.ApplicationManager, tokens *manager.TokenManager) {
	d.Register(pipeline.HandlerDescriptor{
		Name:        "authenticate-and-introspect",
		ContextType: CtxHandleIntrospectionRequest,
		Order:       10,
		Required:    true,
		Factory: func() pipeline.Handler {
			return pipeline.HandlerFunc(func(ctx context.Context, pc pipeline.Context) error {
				rc := pc.(*IntrospectionContext)
				introspect(ctx, rc, apps, tokens)
				return nil
			})
		},
	})
}

func introspect(ctx context.Context, rc *IntrospectionContext, apps *manager.ApplicationManager, tokens *manager.TokenManager) {
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
	rc.MarkHandled()

	value := rc.Request.GetString("token")
	if value == "" {
		return
	}
	tok, err := tokens.FindByReferenceID(ctx, value)
	if err != nil {
		return
	}
	if !tok.IsValid(rc.Transaction.Options.Now()) {
		return
	}
	owned := tok.ApplicationID == app.ID
	if !owned && !hasScope(strings.Fields(tok.Properties["audience"]), app.ID) {
		return
	}
	rc.Active = true
	rc.Token = &tok
}
