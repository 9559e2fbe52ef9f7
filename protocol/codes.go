// Package protocol implements the endpoint state machines of spec.md §4.4 as ordered
// pipeline.HandlerDescriptor tables: authorization, token, introspection, revocation, userinfo,
// logout, and discovery/JWKS. Each endpoint's extraction is left to httpapi (Go's net/http already
// gives an idiomatic way to populate a message.Request from a query string or form body);
// protocol owns validate, handle, and apply-response.
package protocol

// Wire error codes, per spec.md §6 (RFC 6749 §5.2 plus the OIDC additions).
const (
	ErrInvalidRequest          = "invalid_request"
	ErrInvalidClient           = "invalid_client"
	ErrInvalidGrant            = "invalid_grant"
	ErrUnauthorizedClient      = "unauthorized_client"
	ErrUnsupportedGrantType    = "unsupported_grant_type"
	ErrUnsupportedResponseType = "unsupported_response_type"
	ErrInvalidScope            = "invalid_scope"
	ErrAccessDenied            = "access_denied"
	ErrServerError             = "server_error"
	ErrTemporarilyUnavailable  = "temporarily_unavailable"

	ErrInteractionRequired       = "interaction_required"
	ErrLoginRequired             = "login_required"
	ErrConsentRequired           = "consent_required"
	ErrRequestNotSupported       = "request_not_supported"
	ErrRequestURINotSupported    = "request_uri_not_supported"
	ErrRegistrationNotSupported  = "registration_not_supported"
)

// ResponseMode values, per spec.md §6.
const (
	ResponseModeQuery    = "query"
	ResponseModeFragment = "fragment"
	ResponseModeFormPost = "form_post"
)

// Grant types, per spec.md §4.4.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// Permission string prefixes an Application.Permissions entry may carry, per storage.Application's
// doc comment.
const (
	PermissionEndpointPrefix  = "ept:"
	PermissionGrantTypePrefix = "gt:"
	PermissionScopePrefix     = "scp:"
	PermissionAudiencePrefix  = "aud:"
)
