package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/protocol"
)

func TestInferIssuerBuildsAbsoluteURI(t *testing.T) {
	issuer, err := protocol.InferIssuer("https", "issuer.example", "")
	require.NoError(t, err)
	require.Equal(t, "https://issuer.example", issuer)
}

func TestInferIssuerFailsWithoutHost(t *testing.T) {
	_, err := protocol.InferIssuer("https", "", "")
	require.ErrorIs(t, err, protocol.ErrIssuerInferenceFailed)
}

func TestNewDiscoveryDocumentJoinsIssuerAndPaths(t *testing.T) {
	doc := protocol.NewDiscoveryDocument(protocol.DiscoveryOptions{
		Issuer:                 "https://issuer.example",
		Paths:                  protocol.DefaultEndpointPaths,
		Scopes:                 []string{"openid", "profile"},
		ResponseTypes:          []string{"code"},
		GrantTypes:             []string{"authorization_code"},
		IDTokenSigningAlgs:     []string{"RS256"},
		TokenEndpointAuthTypes: []string{"client_secret_basic"},
	})

	require.Equal(t, "https://issuer.example", doc.Issuer)
	require.Equal(t, "https://issuer.example/connect/authorize", doc.AuthorizationEndpoint)
	require.Equal(t, "https://issuer.example/connect/token", doc.TokenEndpoint)
	require.Equal(t, "https://issuer.example/.well-known/jwks", doc.JWKSURI)
	require.ElementsMatch(t, []string{"query", "fragment", "form_post"}, doc.ResponseModesSupported)
	require.Contains(t, doc.ClaimsSupported, "sub")
	require.Contains(t, doc.ClaimsSupported, "email")
	require.Equal(t, []string{"public"}, doc.SubjectTypesSupported)
}
