package message

// Response wraps a Message with typed accessors for OAuth2/OIDC response
// parameters.
type Response struct {
	*Message
}

func NewResponse() *Response {
	return &Response{Message: New()}
}

func (r *Response) Error() string            { return r.GetString("error") }
func (r *Response) SetError(v string)        { r.SetString("error", v) }
func (r *Response) ErrorDescription() string { return r.GetString("error_description") }
func (r *Response) SetErrorDescription(v string) {
	r.SetString("error_description", v)
}
func (r *Response) ErrorURI() string     { return r.GetString("error_uri") }
func (r *Response) SetErrorURI(v string) { r.SetString("error_uri", v) }

func (r *Response) AccessToken() string        { return r.GetString("access_token") }
func (r *Response) SetAccessToken(v string)     { r.SetString("access_token", v) }
func (r *Response) TokenType() string           { return r.GetString("token_type") }
func (r *Response) SetTokenType(v string)       { r.SetString("token_type", v) }
func (r *Response) ExpiresIn() (int64, bool)    { return r.Get("expires_in").Int64() }
func (r *Response) SetExpiresIn(v int64)         { r.Set("expires_in", Int64Parameter(v)) }
func (r *Response) RefreshToken() string        { return r.GetString("refresh_token") }
func (r *Response) SetRefreshToken(v string)     { r.SetString("refresh_token", v) }
func (r *Response) IDToken() string             { return r.GetString("id_token") }
func (r *Response) SetIDToken(v string)          { r.SetString("id_token", v) }
func (r *Response) Code() string                { return r.GetString("code") }
func (r *Response) SetCode(v string)             { r.SetString("code", v) }
func (r *Response) State() string                { return r.GetString("state") }
func (r *Response) SetState(v string)            { r.SetString("state", v) }
func (r *Response) Scope() string                { return r.GetString("scope") }
func (r *Response) SetScope(v string)            { r.SetString("scope", v) }
func (r *Response) Active() (bool, bool)         { return r.Get("active").Bool() }
func (r *Response) SetActive(v bool)              { r.Set("active", BoolParameter(v)) }

// IsError reports whether an "error" parameter has been set on the response.
func (r *Response) IsError() bool { return r.Has("error") }
