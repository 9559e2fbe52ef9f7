package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/token"
)

func TestKeyStoreRotateRetiresPreviousKey(t *testing.T) {
	ks := token.NewKeyStore(time.Hour, 24*time.Hour)

	first, err := ks.Keys()
	require.NoError(t, err)
	require.NotNil(t, first.SigningKey)
	require.Empty(t, first.VerificationKeys)

	require.NoError(t, ks.Rotate())

	second, err := ks.Keys()
	require.NoError(t, err)
	require.NotEqual(t, first.SigningKey.KeyID, second.SigningKey.KeyID)
	require.Len(t, second.VerificationKeys, 1)
	require.Equal(t, first.SigningKey.KeyID, second.VerificationKeys[0].PublicKey.KeyID)
}

func TestKeyStoreJWKSIncludesRetiredKeys(t *testing.T) {
	ks := token.NewKeyStore(time.Hour, 24*time.Hour)
	_, err := ks.Keys()
	require.NoError(t, err)
	require.NoError(t, ks.Rotate())

	jwks, err := ks.JWKS()
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 2)
}

func TestStaticKeyStoreNeverRotates(t *testing.T) {
	ks := token.NewStaticKeyStore()
	first, err := ks.Keys()
	require.NoError(t, err)
	second, err := ks.Keys()
	require.NoError(t, err)
	require.Equal(t, first.SigningKey.KeyID, second.SigningKey.KeyID)
}
