package message

import "strings"

// Request wraps a Message with typed accessors for OAuth2/OIDC request
// parameters.
type Request struct {
	*Message
}

func NewRequest() *Request {
	return &Request{Message: New()}
}

func (r *Request) ClientID() string                { return r.GetString("client_id") }
func (r *Request) SetClientID(v string)             { r.SetString("client_id", v) }
func (r *Request) RedirectURI() string              { return r.GetString("redirect_uri") }
func (r *Request) SetRedirectURI(v string)           { r.SetString("redirect_uri", v) }
func (r *Request) ResponseType() string              { return r.GetString("response_type") }
func (r *Request) ResponseMode() string              { return r.GetString("response_mode") }
func (r *Request) Code() string                      { return r.GetString("code") }
func (r *Request) RefreshToken() string              { return r.GetString("refresh_token") }
func (r *Request) AccessToken() string               { return r.GetString("access_token") }
func (r *Request) GrantType() string                 { return r.GetString("grant_type") }
func (r *Request) Nonce() string                      { return r.GetString("nonce") }
func (r *Request) Prompt() string                     { return r.GetString("prompt") }
func (r *Request) CodeChallenge() string              { return r.GetString("code_challenge") }
func (r *Request) CodeChallengeMethod() string        { return r.GetString("code_challenge_method") }
func (r *Request) CodeVerifier() string               { return r.GetString("code_verifier") }
func (r *Request) State() string                      { return r.GetString("state") }
func (r *Request) TokenTypeHint() string              { return r.GetString("token_type_hint") }
func (r *Request) IDTokenHint() string                { return r.GetString("id_token_hint") }
func (r *Request) PostLogoutRedirectURI() string      { return r.GetString("post_logout_redirect_uri") }
func (r *Request) ClientSecret() string               { return r.GetString("client_secret") }
func (r *Request) Username() string                   { return r.GetString("username") }
func (r *Request) Password() string                   { return r.GetString("password") }

// Scope returns the raw "scope" parameter value.
func (r *Request) Scope() string { return r.GetString("scope") }

// GetScopes splits the space-delimited "scope" parameter.
func (r *Request) GetScopes() []string {
	scope := r.Scope()
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}

func (r *Request) SetScopes(scopes []string) {
	r.SetString("scope", strings.Join(scopes, " "))
}

func (r *Request) HasScope(scope string) bool {
	for _, s := range r.GetScopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// GetResponseTypes splits the space-delimited "response_type" parameter.
func (r *Request) GetResponseTypes() []string {
	rt := r.ResponseType()
	if rt == "" {
		return nil
	}
	return strings.Fields(rt)
}

func (r *Request) HasResponseType(value string) bool {
	for _, t := range r.GetResponseTypes() {
		if t == value {
			return true
		}
	}
	return false
}

func (r *Request) HasPromptValue(value string) bool {
	for _, p := range strings.Fields(r.Prompt()) {
		if p == value {
			return true
		}
	}
	return false
}

// Audiences returns the "resource"/"audience" parameters as a list.
func (r *Request) Audiences() []string {
	if arr := r.GetStringArray("resource"); len(arr) > 0 {
		return arr
	}
	if arr := r.GetStringArray("audience"); len(arr) > 0 {
		return arr
	}
	return nil
}

// Flow predicates, per spec.md §4.1.

func (r *Request) IsAuthorizationCodeFlow() bool {
	return r.HasResponseType("code") && !r.HasResponseType("token") && !r.HasResponseType("id_token")
}

func (r *Request) IsImplicitFlow() bool {
	if r.HasResponseType("code") {
		return false
	}
	return r.HasResponseType("token") || r.HasResponseType("id_token")
}

func (r *Request) IsHybridFlow() bool {
	return r.HasResponseType("code") && (r.HasResponseType("token") || r.HasResponseType("id_token"))
}

func (r *Request) IsAuthorizationCodeGrantType() bool {
	return r.GrantType() == "authorization_code"
}

func (r *Request) IsClientCredentialsGrantType() bool {
	return r.GrantType() == "client_credentials"
}

func (r *Request) IsPasswordGrantType() bool {
	return r.GrantType() == "password"
}

func (r *Request) IsRefreshTokenGrantType() bool {
	return r.GrantType() == "refresh_token"
}

func (r *Request) IsDeviceCodeGrantType() bool {
	return r.GrantType() == "urn:ietf:params:oauth:grant-type:device_code"
}

func (r *Request) IsQueryResponseMode() bool {
	mode := r.ResponseMode()
	return mode == "query" || (mode == "" && r.IsAuthorizationCodeFlow())
}

func (r *Request) IsFragmentResponseMode() bool {
	mode := r.ResponseMode()
	return mode == "fragment" || (mode == "" && r.IsImplicitFlow())
}

// IsFormPostResponseMode reports form_post either because the client asked for it explicitly, or
// because it's the inferred default for a hybrid response_type (code plus token/id_token), which
// carries more to hand back than a fragment comfortably should.
func (r *Request) IsFormPostResponseMode() bool {
	mode := r.ResponseMode()
	return mode == "form_post" || (mode == "" && r.IsHybridFlow())
}
