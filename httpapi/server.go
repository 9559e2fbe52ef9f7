// Package httpapi binds the protocol package's pipeline-driven endpoint state machines to
// net/http: it builds an oauth2tx.Transaction per request, extracts parameters into it, runs the
// pipeline, and translates the result into an HTTP response. This is the "host" layer spec.md §1
// places outside the core — the core never imports net/http.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/protocol"
	"github.com/coreoidc/authd/token"
)

// ClaimsProvider resolves the profile claims a userinfo response should carry for subject,
// restricted to allowedClaims. Left to the host, per spec.md §9's pass-through mode: the core has
// no end-user profile store.
type ClaimsProvider interface {
	Claims(ctx context.Context, subject string, allowedClaims []string) (map[string]any, error)
}

// Config assembles a Server.
type Config struct {
	Issuer         string
	Paths          protocol.EndpointPaths
	Logger         *slog.Logger
	Apps           *manager.ApplicationManager
	Authorizations *manager.AuthorizationManager
	Tokens         *manager.TokenManager
	Scopes         *manager.ScopeManager
	Keys           *token.KeyStore
	Serializer     token.TokenSerializer
	Signin         SigninHandler
	Claims         ClaimsProvider
	Options        oauth2tx.Options
	AllowedOrigins []string

	// DiscoveryScopes and TokenEndpointAuthMethods feed NewDiscoveryDocument; both default to a
	// reasonable stock set when left empty.
	DiscoveryScopes          []string
	TokenEndpointAuthMethods []string
	IDTokenSigningAlgs       []string
}

// Server is the net/http binding for the authorization server core.
type Server struct {
	cfg Config
	mux *mux.Router

	authorizeDispatch  *pipeline.Dispatcher
	tokenDispatch      *pipeline.Dispatcher
	introspectDispatch *pipeline.Dispatcher
	revokeDispatch     *pipeline.Dispatcher
	userinfoDispatch   *pipeline.Dispatcher
	logoutDispatch     *pipeline.Dispatcher
}

// NewServer wires the pipeline dispatch tables and the gorilla/mux route table, grounded on
// dex's server.New (mux.NewRouter().SkipClean(true).UseEncodedPath(), a handleWithCORS helper
// wrapping gorilla/handlers.CORS for the caller-facing discovery/token/jwks/userinfo endpoints).
func NewServer(cfg Config) (*Server, error) {
	if cfg.Paths == (protocol.EndpointPaths{}) {
		cfg.Paths = protocol.DefaultEndpointPaths
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Options.Issuer = cfg.Issuer
	cfg.Options.Serializer = cfg.Serializer
	if len(cfg.DiscoveryScopes) == 0 {
		cfg.DiscoveryScopes = []string{"openid", "profile", "email", "phone", "address", "offline_access"}
	}
	if len(cfg.TokenEndpointAuthMethods) == 0 {
		cfg.TokenEndpointAuthMethods = []string{"client_secret_post", "client_secret_basic", "none"}
	}
	if len(cfg.IDTokenSigningAlgs) == 0 {
		cfg.IDTokenSigningAlgs = []string{"RS256"}
	}

	s := &Server{
		cfg:                cfg,
		authorizeDispatch:  pipeline.NewDispatcher(),
		tokenDispatch:      pipeline.NewDispatcher(),
		introspectDispatch: pipeline.NewDispatcher(),
		revokeDispatch:     pipeline.NewDispatcher(),
		userinfoDispatch:   pipeline.NewDispatcher(),
		logoutDispatch:     pipeline.NewDispatcher(),
	}
	protocol.RegisterAuthorizationHandlers(s.authorizeDispatch, cfg.Apps, cfg.Scopes)
	protocol.RegisterTokenHandlers(s.tokenDispatch, cfg.Apps, cfg.Authorizations, cfg.Tokens)
	protocol.RegisterIntrospectionHandlers(s.introspectDispatch, cfg.Apps, cfg.Tokens)
	protocol.RegisterRevocationHandlers(s.revokeDispatch, cfg.Apps, cfg.Tokens)
	protocol.RegisterUserinfoHandlers(s.userinfoDispatch, cfg.Tokens)
	protocol.RegisterLogoutHandlers(s.logoutDispatch, cfg.Apps)

	for _, d := range []*pipeline.Dispatcher{s.authorizeDispatch, s.tokenDispatch, s.introspectDispatch, s.revokeDispatch, s.userinfoDispatch, s.logoutDispatch} {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	s.mux = s.buildRouter()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter().SkipClean(true).UseEncodedPath()

	handle := func(p string, h http.HandlerFunc) {
		r.HandleFunc(path.Join("/", p), withObservability(p, h))
	}
	handleCORS := func(p string, h http.HandlerFunc) {
		var handler http.Handler = withObservability(p, h)
		if len(s.cfg.AllowedOrigins) > 0 {
			handler = handlers.CORS(handlers.AllowedOrigins(s.cfg.AllowedOrigins))(handler)
		}
		r.Handle(path.Join("/", p), handler)
	}

	handle(s.cfg.Paths.Authorization, s.handleAuthorization)
	handleCORS(s.cfg.Paths.Token, s.handleToken)
	handleCORS(s.cfg.Paths.Introspection, s.handleIntrospection)
	handleCORS(s.cfg.Paths.Revocation, s.handleRevocation)
	handleCORS(s.cfg.Paths.Userinfo, s.handleUserinfo)
	handle(s.cfg.Paths.Logout, s.handleLogout)
	handleCORS(s.cfg.Paths.JWKS, s.handleJWKS)
	handleCORS("/.well-known/openid-configuration", s.handleDiscovery)
	return r
}

// newTransaction builds a Transaction for kind, extracting r's parameters into it.
func (s *Server) newTransaction(r *http.Request, kind oauth2tx.EndpointKind) (*oauth2tx.Transaction, error) {
	tx := oauth2tx.New(r.Context(), kind, s.cfg.Options)
	if err := populateRequest(r, tx.Request); err != nil {
		return nil, err
	}
	return tx, nil
}

func accessTokenExpiresIn(expiry time.Time, now time.Time) int64 {
	if expiry.IsZero() {
		return 0
	}
	d := expiry.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}
