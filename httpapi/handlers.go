package httpapi

import (
	"errors"
	"net/http"
	"sort"

	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
	"github.com/coreoidc/authd/protocol"
)

// errorCodeAndDescription unwraps a dispatch error into a wire error code and description,
// falling back to server_error for anything that isn't a *pipeline.ProtocolError (a
// misconfiguration or a store failure, per spec.md §4.4's error-propagation note).
func errorCodeAndDescription(err error) (string, string) {
	var perr *pipeline.ProtocolError
	if errors.As(err, &perr) {
		return perr.Code, perr.Description
	}
	return protocol.ErrServerError, err.Error()
}

func writeDispatchError(w http.ResponseWriter, err error) {
	code, desc := errorCodeAndDescription(err)
	writeWireError(w, statusForCode(code), code, desc)
}

// handleAuthorization implements the authorization endpoint: validate, hand off to the host's
// SigninHandler for end-user authentication and consent, issue the authorization code, and
// redirect, per spec.md §4.4's "Authorization endpoint" section.
func (s *Server) handleAuthorization(w http.ResponseWriter, r *http.Request) {
	tx, err := s.newTransaction(r, oauth2tx.EndpointAuthorization)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, err.Error())
		return
	}

	validated := protocol.NewAuthorizationValidateContext(tx)
	if err := s.authorizeDispatch.Dispatch(r.Context(), validated); err != nil {
		s.writeAuthorizationError(w, r, validated, err)
		return
	}

	if s.cfg.Signin == nil {
		s.writeAuthorizationError(w, r, validated, &pipeline.ProtocolError{
			Code:        protocol.ErrServerError,
			Description: "no sign-in handler configured",
		})
		return
	}

	clientID := tx.Request.ClientID()
	requestedScopes := tx.Request.GetScopes()
	subject, grantedScopes, ok := s.cfg.Signin.Signin(w, r, clientID, requestedScopes)
	if !ok {
		return
	}

	handled := protocol.NewAuthorizationHandleContext(tx, validated.Application)
	handled.Subject = subject
	handled.GrantedScopes = grantedScopes
	if err := s.authorizeDispatch.Dispatch(r.Context(), handled); err != nil {
		s.writeAuthorizationError(w, r, validated, err)
		return
	}

	_, code, err := protocol.NewAuthorizationCode(
		r.Context(), s.cfg.Authorizations, s.cfg.Tokens,
		clientID, subject, grantedScopes,
		tx.Request.CodeChallenge(), tx.Request.CodeChallengeMethod(), tx.Request.RedirectURI(),
		tx.Options.Now(),
	)
	if err != nil {
		s.writeAuthorizationError(w, r, validated, err)
		return
	}

	result := protocol.ApplyAuthorizationResponse(validated, map[string]string{"code": code.ReferenceID})
	redirectWithParams(w, r, result.RedirectURI, result.ResponseMode, result.Parameters)
}

// writeAuthorizationError renders err as a redirect (when a redirect_uri has already been
// validated) or as a direct error page otherwise, per dex's displayedAuthErr/redirectedAuthErr
// split in server/oauth2.go.
func (s *Server) writeAuthorizationError(w http.ResponseWriter, r *http.Request, validated *protocol.AuthorizationValidateContext, err error) {
	code, desc := errorCodeAndDescription(err)
	if validated.ValidatedRedirectURI != nil {
		result := protocol.ApplyAuthorizationResponse(validated, map[string]string{
			"error":             code,
			"error_description": desc,
		})
		redirectWithParams(w, r, result.RedirectURI, result.ResponseMode, result.Parameters)
		return
	}
	writeWireError(w, statusForCode(code), code, desc)
}

// handleToken implements the token endpoint, per spec.md §4.4's "Token endpoint" section.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	tx, err := s.newTransaction(r, oauth2tx.EndpointToken)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, err.Error())
		return
	}

	validated := protocol.NewTokenValidateContext(tx)
	if err := s.tokenDispatch.Dispatch(r.Context(), validated); err != nil {
		writeDispatchError(w, err)
		return
	}

	handled := protocol.NewTokenHandleContext(tx, validated)
	if err := s.tokenDispatch.Dispatch(r.Context(), handled); err != nil {
		writeDispatchError(w, err)
		return
	}
	if !handled.IsHandled() {
		writeWireError(w, http.StatusBadRequest, protocol.ErrInvalidGrant, "the grant could not be completed")
		return
	}

	resp := tx.Response
	if handled.IssuedAccessToken != "" {
		resp.SetAccessToken(handled.IssuedAccessToken)
	} else {
		resp.SetAccessToken(handled.AccessToken.ReferenceID)
	}
	resp.SetTokenType("Bearer")
	resp.SetExpiresIn(accessTokenExpiresIn(handled.AccessToken.ExpirationDate, tx.Options.Now()))
	resp.SetScope(handled.AccessToken.Properties["scope"])
	if handled.RefreshToken.ReferenceID != "" {
		resp.SetRefreshToken(handled.RefreshToken.ReferenceID)
	}
	if handled.IssuedIdentityToken != "" {
		resp.SetIDToken(handled.IssuedIdentityToken)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleIntrospection implements the introspection endpoint. active=false is returned for every
// token the caller isn't authorized to inspect rather than a wire error, per spec.md §4.4.
func (s *Server) handleIntrospection(w http.ResponseWriter, r *http.Request) {
	tx, err := s.newTransaction(r, oauth2tx.EndpointIntrospection)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, err.Error())
		return
	}

	rc := protocol.NewIntrospectionContext(tx)
	if err := s.introspectDispatch.Dispatch(r.Context(), rc); err != nil {
		writeDispatchError(w, err)
		return
	}

	if !rc.Active {
		writeJSON(w, http.StatusOK, struct {
			Active bool `json:"active"`
		}{false})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Active   bool   `json:"active"`
		Scope    string `json:"scope,omitempty"`
		ClientID string `json:"client_id,omitempty"`
		Sub      string `json:"sub,omitempty"`
		Exp      int64  `json:"exp,omitempty"`
	}{
		Active:   true,
		Scope:    rc.Token.Properties["scope"],
		ClientID: rc.Token.ApplicationID,
		Sub:      rc.Token.Subject,
		Exp:      rc.Token.ExpirationDate.Unix(),
	})
}

// handleRevocation implements the revocation endpoint. Always 200 on a request that authenticates,
// whether or not a matching token existed, per spec.md §6.
func (s *Server) handleRevocation(w http.ResponseWriter, r *http.Request) {
	tx, err := s.newTransaction(r, oauth2tx.EndpointRevocation)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, err.Error())
		return
	}

	rc := protocol.NewRevocationContext(tx)
	if err := s.revokeDispatch.Dispatch(r.Context(), rc); err != nil {
		writeDispatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleUserinfo implements the userinfo endpoint.
func (s *Server) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	tx, err := s.newTransaction(r, oauth2tx.EndpointUserinfo)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, err.Error())
		return
	}
	tx.Request.SetString("access_token", bearerToken(r, tx.Request))

	rc := protocol.NewUserinfoContext(tx)
	if err := s.userinfoDispatch.Dispatch(r.Context(), rc); err != nil {
		writeDispatchError(w, err)
		return
	}

	claims := map[string]any{"sub": rc.Subject}
	if s.cfg.Claims != nil {
		extra, err := s.cfg.Claims.Claims(r.Context(), rc.Subject, rc.AllowedClaims)
		if err != nil {
			writeWireError(w, http.StatusInternalServerError, protocol.ErrServerError, err.Error())
			return
		}
		for k, v := range extra {
			claims[k] = v
		}
	}
	writeJSON(w, http.StatusOK, claims)
}

// handleLogout implements end-session logout, per spec.md §4.4 and §8 scenario 6.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tx, err := s.newTransaction(r, oauth2tx.EndpointLogout)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, err.Error())
		return
	}

	rc := protocol.NewLogoutContext(tx)
	if err := s.logoutDispatch.Dispatch(r.Context(), rc); err != nil {
		writeDispatchError(w, err)
		return
	}

	if rc.ValidatedRedirectURI == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	u := *rc.ValidatedRedirectURI
	if state := tx.Request.State(); state != "" {
		q := u.Query()
		q.Set("state", state)
		u.RawQuery = q.Encode()
	}
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// handleJWKS serves the signing/verification key set, per spec.md §4.7's key rotation contract.
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Keys == nil {
		writeWireError(w, http.StatusNotImplemented, protocol.ErrServerError, "no signing keys configured")
		return
	}
	set, err := s.cfg.Keys.JWKS()
	if err != nil {
		writeWireError(w, http.StatusInternalServerError, protocol.ErrServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// handleDiscovery serves /.well-known/openid-configuration, inferring the issuer from the request
// when none was configured, per spec.md §4.4's "Issuer inference" section.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	issuer := s.cfg.Issuer
	if issuer == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		inferred, err := protocol.InferIssuer(scheme, r.Host, "")
		if err != nil {
			writeWireError(w, http.StatusInternalServerError, protocol.ErrServerError, err.Error())
			return
		}
		issuer = inferred
	}

	doc := protocol.NewDiscoveryDocument(protocol.DiscoveryOptions{
		Issuer:                 issuer,
		Paths:                  s.cfg.Paths,
		Scopes:                 s.cfg.DiscoveryScopes,
		ResponseTypes:          enabledKeys(s.cfg.Options.SupportedResponseTypes),
		GrantTypes:             enabledKeys(s.cfg.Options.SupportedGrantTypes),
		IDTokenSigningAlgs:     s.cfg.IDTokenSigningAlgs,
		TokenEndpointAuthTypes: s.cfg.TokenEndpointAuthMethods,
	})
	writeJSON(w, http.StatusOK, doc)
}

func enabledKeys(m map[string]bool) []string {
	var out []string
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
