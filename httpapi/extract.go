package httpapi

import (
	"net/http"

	"github.com/coreoidc/authd/message"
)

// populateRequest extracts query (GET) or form-encoded body (POST) parameters into req, the
// extraction stage spec.md §4.4 leaves to the host rather than the core pipeline. Multi-valued
// parameters ("resource", "audience") are carried as string arrays; everything else as a single
// string, last-value-wins on repeats (unlike net/http's FormValue, which keeps the first).
func populateRequest(r *http.Request, req *message.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	for name, values := range r.Form {
		if len(values) == 0 {
			continue
		}
		switch name {
		case "resource", "audience":
			req.Set(name, message.StringArrayParameter(values))
		default:
			req.SetString(name, values[len(values)-1])
		}
	}
	return nil
}

// bearerToken extracts a bearer token from the Authorization header, falling back to the
// access_token form parameter already populated on req (per RFC 6750 §2.1/§2.3).
func bearerToken(r *http.Request, req *message.Request) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return req.AccessToken()
}
