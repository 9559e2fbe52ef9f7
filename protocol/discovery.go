package protocol

import (
	"errors"
	"net/url"
	"sort"
)

// ErrIssuerInferenceFailed is returned by InferIssuer when the host header is missing or the
// computed issuer is not an absolute URI, per spec.md §4.4's "Issuer inference" section.
var ErrIssuerInferenceFailed = errors.New("invalid_operation: unable to infer issuer from request host")

// InferIssuer derives an issuer URI from scheme, host, and pathBase when no issuer was
// configured, per spec.md §4.4.
func InferIssuer(scheme, host, pathBase string) (string, error) {
	if host == "" {
		return "", ErrIssuerInferenceFailed
	}
	u := &url.URL{Scheme: scheme, Host: host, Path: pathBase}
	if !u.IsAbs() {
		return "", ErrIssuerInferenceFailed
	}
	return u.String(), nil
}

// DiscoveryDocument is the JSON shape served at /.well-known/openid-configuration, per
// spec.md §4.4's "Configuration + JWKS endpoints" section.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	EndSessionEndpoint                string   `json:"end_session_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// DiscoveryOptions configures NewDiscoveryDocument.
type DiscoveryOptions struct {
	Issuer                 string
	Paths                  EndpointPaths
	Scopes                 []string
	ResponseTypes          []string
	GrantTypes             []string
	IDTokenSigningAlgs     []string
	TokenEndpointAuthTypes []string
}

// EndpointPaths holds the configurable endpoint paths, per spec.md §6.
type EndpointPaths struct {
	Authorization string
	Token         string
	Introspection string
	Revocation    string
	Userinfo      string
	Logout        string
	JWKS          string
}

// DefaultEndpointPaths mirrors the default paths in spec.md §6's endpoint table.
var DefaultEndpointPaths = EndpointPaths{
	Authorization: "/connect/authorize",
	Token:         "/connect/token",
	Introspection: "/connect/introspect",
	Revocation:    "/connect/revoke",
	Userinfo:      "/connect/userinfo",
	Logout:        "/connect/logout",
	JWKS:          "/.well-known/jwks",
}

// NewDiscoveryDocument builds the document served at /.well-known/openid-configuration.
func NewDiscoveryDocument(o DiscoveryOptions) DiscoveryDocument {
	paths := o.Paths
	join := func(p string) string { return o.Issuer + p }
	return DiscoveryDocument{
		Issuer:                            o.Issuer,
		AuthorizationEndpoint:             join(paths.Authorization),
		TokenEndpoint:                     join(paths.Token),
		IntrospectionEndpoint:             join(paths.Introspection),
		RevocationEndpoint:                join(paths.Revocation),
		UserinfoEndpoint:                  join(paths.Userinfo),
		EndSessionEndpoint:                join(paths.Logout),
		JWKSURI:                           join(paths.JWKS),
		ScopesSupported:                   o.Scopes,
		ResponseTypesSupported:            o.ResponseTypes,
		ResponseModesSupported:            []string{ResponseModeQuery, ResponseModeFragment, ResponseModeFormPost},
		GrantTypesSupported:               o.GrantTypes,
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  o.IDTokenSigningAlgs,
		CodeChallengeMethodsSupported:     []string{"plain", "S256"},
		TokenEndpointAuthMethodsSupported: o.TokenEndpointAuthTypes,
		ClaimsSupported:                   append([]string{"sub"}, allScopeClaims()...),
	}
}

func allScopeClaims() []string {
	var out []string
	for _, claims := range scopeClaims {
		out = append(out, claims...)
	}
	sort.Strings(out)
	return out
}
