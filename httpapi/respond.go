package httpapi

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coreoidc/authd/protocol"
)

// writeJSON marshals v as the JSON body of the response, per spec.md §6's wire format for the
// token, introspection, and discovery endpoints.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal_error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeWireError renders a direct (non-redirect) OAuth2 error body, per spec.md §6's error code
// table and the display-vs-redirect distinction dex's server/oauth2.go draws between
// displayedAuthErr and redirectedAuthErr.
func writeWireError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, struct {
		Error       string `json:"error"`
		Description string `json:"error_description,omitempty"`
	}{code, description})
}

// statusForCode maps a wire error code to its conventional HTTP status.
func statusForCode(code string) int {
	switch code {
	case protocol.ErrInvalidClient, protocol.ErrUnauthorizedClient:
		return http.StatusUnauthorized
	case protocol.ErrServerError:
		return http.StatusInternalServerError
	case protocol.ErrTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// redirectWithParams 302s to redirectURI with params appended to the query string or fragment
// depending on mode, per spec.md §4.4's "On apply-response".
func redirectWithParams(w http.ResponseWriter, r *http.Request, redirectURI *url.URL, mode string, params map[string]string) {
	switch mode {
	case protocol.ResponseModeFormPost:
		writeFormPost(w, redirectURI.String(), params)
	case protocol.ResponseModeFragment:
		u := *redirectURI
		v := url.Values{}
		for k, val := range params {
			v.Set(k, val)
		}
		u.Fragment = v.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	default:
		u := *redirectURI
		q := u.Query()
		for k, val := range params {
			q.Set(k, val)
		}
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	}
}

var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range $k, $v := .Params}}<input type="hidden" name="{{$k}}" value="{{$v}}">
{{end}}</form>
</body>
</html>`))

// writeFormPost renders the auto-submitting HTML form response_mode=form_post requires (OAuth
// 2.0 Form Post Response Mode), grounded on the plain html/template use in dex's web templates.
func writeFormPost(w http.ResponseWriter, action string, params map[string]string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formPostTemplate.Execute(w, struct {
		Action string
		Params map[string]string
	}{action, params}); err != nil {
		fmt.Fprintf(w, "error rendering form_post response: %v", err)
	}
}
