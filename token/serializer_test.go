package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/token"
)

func TestJOSESerializerRoundTripsAccessToken(t *testing.T) {
	ks := token.NewStaticKeyStore()
	s := token.NewJOSESerializer(ks)

	p := token.Principal{
		Subject:   "user-1",
		Issuer:    "https://issuer.example",
		Audience:  "app-1",
		Scopes:    []string{"openid", "profile"},
		IssuedAt:  time.Unix(1000, 0),
		ExpiresAt: time.Unix(2000, 0),
	}

	jws, err := s.SerializeAccessToken(p)
	require.NoError(t, err)
	require.NotEmpty(t, jws)

	got, err := s.DeserializeAccessToken(jws)
	require.NoError(t, err)
	require.Equal(t, p.Subject, got.Subject)
	require.Equal(t, p.Issuer, got.Issuer)
	require.ElementsMatch(t, p.Scopes, got.Scopes)
}

func TestJOSESerializerVerifiesAcrossRotation(t *testing.T) {
	ks := token.NewKeyStore(time.Hour, 24*time.Hour)
	s := token.NewJOSESerializer(ks)

	jws, err := s.SerializeIdentityToken(token.Principal{Subject: "user-2"})
	require.NoError(t, err)

	require.NoError(t, ks.Rotate())

	got, err := s.DeserializeIdentityToken(jws)
	require.NoError(t, err)
	require.Equal(t, "user-2", got.Subject)
}

func TestJOSESerializerRejectsUnknownKey(t *testing.T) {
	signing := token.NewStaticKeyStore()
	verifying := token.NewStaticKeyStore()

	jws, err := token.NewJOSESerializer(signing).SerializeAccessToken(token.Principal{Subject: "user-3"})
	require.NoError(t, err)

	_, err = token.NewJOSESerializer(verifying).DeserializeAccessToken(jws)
	require.Error(t, err)
}
