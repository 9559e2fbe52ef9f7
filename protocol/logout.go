package protocol

import (
	"context"
	"net/url"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/storage"
)

// CtxValidateLogoutRequest is the logout endpoint's context type.
const CtxValidateLogoutRequest pipeline.ContextType = "logout.validate"

// LogoutContext carries the logout request. IsLogoutAllowed is left false until a host-attached
// handler decides it, per spec.md §4.4's "The host attaches a handler that decides
// is_logout_allowed".
type LogoutContext struct {
	pipeline.BaseValidatingClientContext
	IsLogoutAllowed      bool
	ValidatedRedirectURI *url.URL
}

func NewLogoutContext(tx *oauth2tx.Transaction) *LogoutContext {
	return &LogoutContext{
		BaseValidatingClientContext: pipeline.NewBaseValidatingClientContext(CtxValidateLogoutRequest, tx),
	}
}

// RegisterLogoutHandlers wires the logout endpoint's post_logout_redirect_uri validation, per
// spec.md §4.4's "Logout endpoint" section and §8 scenario 6.
func RegisterLogoutHandlers(d *pipeline.Dispatcher, apps *manager.ApplicationManager) {
	d.Register(pipeline.HandlerDescriptor{
		Name:        "validate-post-logout-redirect-uri",
		ContextType: CtxValidateLogoutRequest,
		Order:       10,
		Required:    true,
		Factory: func() pipeline.Handler {
			return pipeline.HandlerFunc(func(ctx context.Context, pc pipeline.Context) error {
				validateLogout(ctx, pc.(*LogoutContext), apps)
				return nil
			})
		},
	})
}

func validateLogout(ctx context.Context, rc *LogoutContext, apps *manager.ApplicationManager) {
	uri := rc.Request.PostLogoutRedirectURI()
	if uri == "" {
		return
	}

	var app storage.Application
	if clientID := rc.Request.ClientID(); clientID != "" {
		a, err := apps.FindByID(ctx, clientID)
		if err != nil {
			rc.RejectWithCode(ErrInvalidRequest, "client_id does not resolve to a known application")
			return
		}
		app = a
		rc.Application = &app
	}

	if rc.Application == nil || !rc.Application.HasPostLogoutRedirectURI(uri) {
		rc.RejectWithCode(ErrInvalidRequest, "post_logout_redirect_uri is not registered")
		return
	}
	u, err := url.Parse(uri)
	if err != nil {
		rc.RejectWithCode(ErrInvalidRequest, "post_logout_redirect_uri is malformed")
		return
	}
	rc.ValidatedRedirectURI = u
}
