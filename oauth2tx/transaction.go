// Package oauth2tx implements the per-request Transaction that every
// pipeline handler operates on.
package oauth2tx

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/coreoidc/authd/message"
	"github.com/coreoidc/authd/token"
)

// EndpointKind identifies which protocol endpoint a Transaction belongs to.
type EndpointKind int

const (
	EndpointUnknown EndpointKind = iota
	EndpointAuthorization
	EndpointToken
	EndpointIntrospection
	EndpointRevocation
	EndpointUserinfo
	EndpointLogout
	EndpointConfiguration
	EndpointCryptography
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointAuthorization:
		return "authorization"
	case EndpointToken:
		return "token"
	case EndpointIntrospection:
		return "introspection"
	case EndpointRevocation:
		return "revocation"
	case EndpointUserinfo:
		return "userinfo"
	case EndpointLogout:
		return "logout"
	case EndpointConfiguration:
		return "configuration"
	case EndpointCryptography:
		return "cryptography"
	default:
		return "unknown"
	}
}

// Options is an immutable snapshot of the server options a transaction was
// created under. Handlers read it but never mutate it.
type Options struct {
	Issuer                      string
	SupportedResponseTypes      map[string]bool
	SupportedGrantTypes         map[string]bool
	EnabledEndpoints            map[EndpointKind]bool
	ScopeValidationEnabled      bool
	DegradedMode                bool
	UserinfoEndpointPassthrough bool

	// RequireEndpointPermission, RequireGrantTypePermission, and RequireScopePermission gate the
	// three permission checks the authorization/token validation chain performs against an
	// Application's Permissions list, per spec.md §4.4's "each gated by its corresponding option
	// flag".
	RequireEndpointPermission  bool
	RequireGrantTypePermission bool
	RequireScopePermission     bool

	// Clock supplies "now" for token expiry checks during dispatch. Defaults to the real clock.
	Clock clockwork.Clock

	// Serializer signs the access and identity tokens returned from the token endpoint, per
	// spec.md §4.7's token serializer contract. Nil disables JWT issuance; the endpoint then
	// returns only the opaque reference value, per spec.md §9's pass-through mode.
	Serializer token.TokenSerializer

	AccessTokenLifetime   time.Duration
	IdentityTokenLifetime time.Duration

	// RefreshTokenLifetime bounds how long an issued refresh token remains valid. Zero means the
	// refresh token never expires on its own (it can still be revoked), matching the "permanent"
	// authorization model in spec.md §4.1.
	RefreshTokenLifetime time.Duration
}

func (o Options) ResponseTypeEnabled(rt string) bool { return o.SupportedResponseTypes[rt] }
func (o Options) GrantTypeEnabled(gt string) bool    { return o.SupportedGrantTypes[gt] }
func (o Options) EndpointEnabled(k EndpointKind) bool {
	if o.EnabledEndpoints == nil {
		return true
	}
	return o.EnabledEndpoints[k]
}

// Now returns the transaction's clock reading, falling back to the real clock when none was
// configured.
func (o Options) Now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}
	return o.Clock.Now()
}

// Transaction is the per-request scoped state threaded through every
// pipeline stage for a single HTTP request. A Transaction is not safe for
// concurrent use: all handlers of a given transaction must run
// single-threadedly and cooperatively, per spec.md §4.2/§5.
type Transaction struct {
	ctx context.Context

	EndpointType EndpointKind
	Issuer       string

	Request  *message.Request
	Response *message.Response

	Options Options

	mu         sync.Mutex
	properties map[string]interface{}
}

// New creates a Transaction scoped to ctx. ctx supplies cancellation; it is
// the caller's responsibility to cancel it when the outermost pipeline
// dispatch completes.
func New(ctx context.Context, kind EndpointKind, opts Options) *Transaction {
	return &Transaction{
		ctx:          ctx,
		EndpointType: kind,
		Issuer:       opts.Issuer,
		Request:      message.NewRequest(),
		Response:     message.NewResponse(),
		Options:      opts,
		properties:   make(map[string]interface{}),
	}
}

func (t *Transaction) Context() context.Context { return t.ctx }

// Done reports whether the transaction's context has been cancelled.
func (t *Transaction) Done() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// SetProperty stores a cross-handler value in the transaction's properties
// bag. Keys are conventionally snake_case strings, e.g. "validated_redirect_uri".
func (t *Transaction) SetProperty(key string, value interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.properties[key] = value
}

func (t *Transaction) Property(key string) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.properties[key]
	return v, ok
}

// PropertyString fetches a string property, returning "" if absent or of
// the wrong type.
func (t *Transaction) PropertyString(key string) string {
	v, ok := t.Property(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ValidatedRedirectURI is a thin, typed wrapper over the
// "validated_redirect_uri" property set by the authorization state machine
// on successful validation (spec.md §4.4, §8).
func (t *Transaction) ValidatedRedirectURI() (*url.URL, bool) {
	v, ok := t.Property("validated_redirect_uri")
	if !ok {
		return nil, false
	}
	u, ok := v.(*url.URL)
	return u, ok
}

func (t *Transaction) SetValidatedRedirectURI(u *url.URL) {
	t.SetProperty("validated_redirect_uri", u)
}
