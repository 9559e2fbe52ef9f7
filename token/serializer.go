package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Principal is the authenticated subject and claims a token event carries, per spec.md §4.7's
// token serializer contract.
type Principal struct {
	Subject         string
	Issuer          string
	Audience        string
	ApplicationID   string
	AuthorizationID string
	Scopes          []string
	Properties      map[string]string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

func (p Principal) claims() map[string]any {
	c := map[string]any{
		"sub": p.Subject,
		"iss": p.Issuer,
		"aud": p.Audience,
		"iat": p.IssuedAt.Unix(),
		"exp": p.ExpiresAt.Unix(),
	}
	if len(p.Scopes) > 0 {
		c["scope"] = strings.Join(p.Scopes, " ")
	}
	for k, v := range p.Properties {
		if _, reserved := c[k]; !reserved {
			c[k] = v
		}
	}
	return c
}

// ErrSerializerNotHandled reports that a token serializer produced no result, corresponding to
// spec.md §4.7's "an unhandled deserialize after dispatch is a configuration fault".
// JOSESerializer itself never returns it.
var ErrSerializerNotHandled = errors.New("token serializer: event was not handled")

// TokenSerializer turns principals into wire tokens and back, per spec.md §4.7. The default
// implementation below signs every token type as a compact JWS; a host that wants reference
// (opaque, store-backed) access tokens instead composes manager.TokenManager directly rather
// than going through this interface, the way spec.md §9's pass-through mode describes choosing
// between token shapes per deployment.
type TokenSerializer interface {
	SerializeAccessToken(p Principal) (string, error)
	SerializeRefreshToken(p Principal) (string, error)
	SerializeIdentityToken(p Principal) (string, error)
	SerializeAuthorizationCode(p Principal) (string, error)

	DeserializeAccessToken(token string) (Principal, error)
	DeserializeRefreshToken(token string) (Principal, error)
	DeserializeIdentityToken(token string) (Principal, error)
	DeserializeAuthorizationCode(token string) (Principal, error)
}

// JOSESerializer is the default TokenSerializer, grounded on dex's signer.Signer: it signs claims
// as a compact JWS with the KeyStore's active key and verifies against every still-valid
// verification key on the way back in.
type JOSESerializer struct {
	keys *KeyStore
}

var _ TokenSerializer = (*JOSESerializer)(nil)

// NewJOSESerializer returns a TokenSerializer backed by keys.
func NewJOSESerializer(keys *KeyStore) *JOSESerializer {
	return &JOSESerializer{keys: keys}
}

func (s *JOSESerializer) sign(p Principal) (string, error) {
	keys, err := s.keys.Keys()
	if err != nil {
		return "", err
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: keys.SigningKey}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("token: creating signer: %w", err)
	}
	payload, err := json.Marshal(p.claims())
	if err != nil {
		return "", fmt.Errorf("token: marshaling claims: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("token: signing: %w", err)
	}
	return jws.CompactSerialize()
}

func (s *JOSESerializer) verify(token string) (Principal, error) {
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return Principal{}, fmt.Errorf("token: parsing: %w", err)
	}
	keys, err := s.keys.Keys()
	if err != nil {
		return Principal{}, err
	}
	candidates := []*jose.JSONWebKey{keys.SigningKeyPub}
	for _, vk := range keys.VerificationKeys {
		candidates = append(candidates, vk.PublicKey)
	}
	var payload []byte
	for _, k := range candidates {
		payload, err = jws.Verify(k)
		if err == nil {
			break
		}
	}
	if payload == nil {
		return Principal{}, errors.New("token: signature verification failed against every known key")
	}
	var claims struct {
		Subject string `json:"sub"`
		Issuer  string `json:"iss"`
		Audience string `json:"aud"`
		IssuedAt int64  `json:"iat"`
		Expires  int64  `json:"exp"`
		Scope    string `json:"scope"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Principal{}, fmt.Errorf("token: unmarshaling claims: %w", err)
	}
	return Principal{
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		Audience:  claims.Audience,
		IssuedAt:  time.Unix(claims.IssuedAt, 0),
		ExpiresAt: time.Unix(claims.Expires, 0),
		Scopes:    strings.Fields(claims.Scope),
	}, nil
}

func (s *JOSESerializer) SerializeAccessToken(p Principal) (string, error)        { return s.sign(p) }
func (s *JOSESerializer) SerializeRefreshToken(p Principal) (string, error)       { return s.sign(p) }
func (s *JOSESerializer) SerializeIdentityToken(p Principal) (string, error)      { return s.sign(p) }
func (s *JOSESerializer) SerializeAuthorizationCode(p Principal) (string, error)  { return s.sign(p) }

func (s *JOSESerializer) DeserializeAccessToken(token string) (Principal, error)       { return s.verify(token) }
func (s *JOSESerializer) DeserializeRefreshToken(token string) (Principal, error)      { return s.verify(token) }
func (s *JOSESerializer) DeserializeIdentityToken(token string) (Principal, error)     { return s.verify(token) }
func (s *JOSESerializer) DeserializeAuthorizationCode(token string) (Principal, error) { return s.verify(token) }
