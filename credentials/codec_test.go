package credentials_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	expiry := time.Date(2026, 3, 4, 5, 6, 7, 891011000, time.FixedZone("CET", 3600))

	tests := []struct {
		name  string
		state credentials.State
	}{
		{name: "empty", state: credentials.State{}},
		{name: "all fields", state: credentials.State{
			AccessToken:       "eyJhbGciOi.access",
			IDToken:           "eyJhbGciOi.id",
			RefreshToken:      "refresh",
			AccessTokenExpiry: expiry,
			Scope:             "openid offline_access",
			Sequence:          42,
		}},
		{name: "only refresh token", state: credentials.State{RefreshToken: "refresh", Sequence: 7}},
		{name: "expiry without tokens", state: credentials.State{AccessTokenExpiry: expiry, Sequence: 1}},
		{name: "unicode scope", state: credentials.State{AccessToken: "a\"b\\c", Scope: "ü scope", Sequence: 3}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := credentials.Marshal(tc.state)
			require.NoError(t, err)
			got, err := credentials.Unmarshal(data)
			require.NoError(t, err)
			require.True(t, tc.state.Equal(got), "want %+v got %+v", tc.state, got)
		})
	}
}

func TestMarshalWireFormat(t *testing.T) {
	data, err := credentials.Marshal(credentials.State{
		AccessToken:       "access",
		AccessTokenExpiry: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Scope:             "openid",
		Sequence:          2,
	})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &m))
	require.Equal(t, "access", m["accessToken"])
	require.Contains(t, m, "idToken")
	require.Nil(t, m["idToken"])
	require.Contains(t, m, "refreshToken")
	require.Nil(t, m["refreshToken"])
	require.Equal(t, "2026-01-01T00:00:00Z", m["accessTokenExpiry"])
	require.Equal(t, "openid", m["scope"])
	require.EqualValues(t, 2, m["seq"])
}

func TestUnmarshalCorrupt(t *testing.T) {
	for _, data := range []string{
		"",
		"not json",
		`{"seq":-1}`,
		`{"accessTokenExpiry":"yesterday","seq":1}`,
		`{"accessToken":5}`,
	} {
		_, err := credentials.Unmarshal(data)
		require.ErrorIs(t, err, credentials.ErrCorrupt, data)
	}
}
