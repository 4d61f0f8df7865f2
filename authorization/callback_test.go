package authorization_test

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-client/authorization"
	"github.com/stretchr/testify/require"
)

func TestCallbackParametersFromURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want authorization.CallbackParameters
	}{
		{
			name: "query",
			raw:  "http://127.0.0.1:8765/callback?state=abc&code=xyz",
			want: authorization.CallbackParameters{State: "abc", Code: "xyz"},
		},
		{
			name: "fragment",
			raw:  "myapp://callback#state=abc&code=xyz",
			want: authorization.CallbackParameters{State: "abc", Code: "xyz"},
		},
		{
			name: "error",
			raw:  "http://127.0.0.1:8765/callback?state=abc&error=access_denied&error_description=no+thanks",
			want: authorization.CallbackParameters{State: "abc", Error: "access_denied", ErrorDescription: "no thanks"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			got, err := authorization.CallbackParametersFromURL(u)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCallbackParametersFromRequest(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/callback?state=abc&code=xyz", nil)
		got, err := authorization.CallbackParametersFromRequest(r)
		require.NoError(t, err)
		require.Equal(t, authorization.CallbackParameters{State: "abc", Code: "xyz"}, got)
	})

	t.Run("form post", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/callback", strings.NewReader("state=abc&code=xyz"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		got, err := authorization.CallbackParametersFromRequest(r)
		require.NoError(t, err)
		require.Equal(t, authorization.CallbackParameters{State: "abc", Code: "xyz"}, got)
	})
}
