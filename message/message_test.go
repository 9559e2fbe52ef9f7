package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageSetRemovesOnNull(t *testing.T) {
	m := New()
	m.SetString("foo", "bar")
	require.True(t, m.Has("foo"))

	m.Set("foo", NullParameter())
	require.False(t, m.Has("foo"))
	require.Equal(t, 0, m.Count())
}

func TestMessageAddIsNoopIfPresent(t *testing.T) {
	m := New()
	m.SetString("foo", "bar")
	m.Add("foo", StringParameter("baz"))
	require.Equal(t, "bar", m.GetString("foo"))
}

func TestMessageOrderPreserved(t *testing.T) {
	m := New()
	m.SetString("b", "2")
	m.SetString("a", "1")
	m.SetString("c", "3")
	require.Equal(t, []string{"b", "a", "c"}, m.Names())
}

func TestMessageDebugJSONRedactsSensitiveParameters(t *testing.T) {
	m := New()
	m.SetString("access_token", "secret-value")
	m.SetString("client_id", "abc")

	out, err := m.DebugJSON()
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "[redacted]", decoded["access_token"])
	require.Equal(t, "abc", decoded["client_id"])
}

func TestMessageJSONRoundTrip(t *testing.T) {
	m := New()
	m.SetString("scope", "openid profile")
	m.Set("resource", StringArrayParameter([]string{"https://a", "https://b"}))
	m.Set("expires_in", Int64Parameter(3600))
	m.Set("active", BoolParameter(true))
	m.Set("address", JSONParameter(json.RawMessage(`{"street_address":"1 Infinite Loop"}`)))

	data, err := m.MarshalJSON()
	require.NoError(t, err)

	var out Message
	require.NoError(t, out.UnmarshalJSON(data))

	require.Equal(t, "openid profile", out.GetString("scope"))
	require.Equal(t, []string{"https://a", "https://b"}, out.GetStringArray("resource"))
	exp, ok := out.Get("expires_in").Int64()
	require.True(t, ok)
	require.Equal(t, int64(3600), exp)
	active, ok := out.Get("active").Bool()
	require.True(t, ok)
	require.True(t, active)
	raw, ok := out.Get("address").JSON()
	require.True(t, ok)
	require.JSONEq(t, `{"street_address":"1 Infinite Loop"}`, string(raw))
}
