package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestFlowPredicates(t *testing.T) {
	tests := []struct {
		name             string
		responseType     string
		wantCode         bool
		wantImplicit     bool
		wantHybrid       bool
	}{
		{"code", "code", true, false, false},
		{"token", "token", false, true, false},
		{"id_token", "id_token", false, true, false},
		{"code token", "code token", false, false, true},
		{"code id_token", "code id_token", false, false, true},
		{"code id_token token", "code id_token token", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRequest()
			r.SetString("response_type", tt.responseType)
			require.Equal(t, tt.wantCode, r.IsAuthorizationCodeFlow())
			require.Equal(t, tt.wantImplicit, r.IsImplicitFlow())
			require.Equal(t, tt.wantHybrid, r.IsHybridFlow())
		})
	}
}

func TestRequestScopeHelpers(t *testing.T) {
	r := NewRequest()
	r.SetScopes([]string{"openid", "profile", "offline_access"})
	require.True(t, r.HasScope("profile"))
	require.False(t, r.HasScope("email"))
	require.Equal(t, []string{"openid", "profile", "offline_access"}, r.GetScopes())
}

func TestRequestResponseModeDefaults(t *testing.T) {
	r := NewRequest()
	r.SetString("response_type", "code")
	require.True(t, r.IsQueryResponseMode())
	require.False(t, r.IsFragmentResponseMode())

	r2 := NewRequest()
	r2.SetString("response_type", "id_token")
	require.True(t, r2.IsFragmentResponseMode())
	require.False(t, r2.IsQueryResponseMode())
}
