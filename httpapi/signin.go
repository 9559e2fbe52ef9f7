package httpapi

import "net/http"

// SigninHandler authenticates the end-user and decides consent for an authorization request. It
// is the host's responsibility, per spec.md §1 Non-goals ("no user-interaction UI") and §9's
// pass-through mode: the core pipeline only requires a Subject and granted scopes to proceed, not
// any particular sign-in or consent experience.
type SigninHandler interface {
	// Signin either completes the request itself (writing to w, e.g. redirecting to a login
	// page) and returns ok=false, or resolves a subject and the scopes granted for the given
	// application/requested scopes and returns ok=true.
	Signin(w http.ResponseWriter, r *http.Request, applicationID string, requestedScopes []string) (subject string, grantedScopes []string, ok bool)
}

// SigninFunc adapts a plain function to SigninHandler.
type SigninFunc func(w http.ResponseWriter, r *http.Request, applicationID string, requestedScopes []string) (string, []string, bool)

func (f SigninFunc) Signin(w http.ResponseWriter, r *http.Request, applicationID string, requestedScopes []string) (string, []string, bool) {
	return f(w, r, applicationID, requestedScopes)
}
