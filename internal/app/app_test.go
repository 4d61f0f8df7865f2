package app_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-client/authorization"
	"github.com/jrsteele09/go-auth-client/authtest"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/app"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, p *authtest.Provider, backend string) {
	t.Helper()
	t.Setenv("ISSUER_URL", p.Issuer())
	t.Setenv("CLIENT_ID", p.ClientID())
	t.Setenv("STORAGE_BACKEND", backend)
	t.Setenv("VERIFY_ID_TOKEN", "true")
	t.Setenv("DEVICE_TOKEN", "device-123")
}

func newApp(t *testing.T) *app.App {
	t.Helper()
	cfg, err := config.New()
	require.NoError(t, err)
	a, err := app.New(context.Background(), cfg, app.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func login(t *testing.T, a *app.App, p *authtest.Provider) credentials.State {
	t.Helper()
	ctx := context.Background()
	desc, err := a.Authorization.Begin(ctx, "")
	require.NoError(t, err)
	loc, err := p.Authorize(ctx, desc.URL)
	require.NoError(t, err)
	params, err := authorization.CallbackParametersFromURL(loc)
	require.NoError(t, err)
	res, err := a.Authorization.Complete(ctx, params)
	require.NoError(t, err)
	require.Equal(t, authorization.OutcomeAuthorized, res.Outcome)
	return res.State
}

func call(t *testing.T, a *app.App, p *authtest.Provider, r session.Requirement) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, p.Issuer()+"/api/me", nil)
	require.NoError(t, err)
	resp, err := a.Client.Do(req, r)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp
}

func TestLoginCallRefreshLogout(t *testing.T) {
	p := authtest.New(t)
	setEnv(t, p, config.BackendMemory)
	a := newApp(t)
	require.True(t, a.Status().IsEmpty())

	state := login(t, a, p)
	require.EqualValues(t, 1, state.Sequence)

	resp := call(t, a, p, session.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{state.AccessToken}, p.APITokens())

	p.ExpireAccessTokens()
	resp = call(t, a, p, session.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, p.RefreshRequests())
	require.EqualValues(t, 2, a.Status().Sequence)
	require.NotEqual(t, state.AccessToken, a.Status().AccessToken)
	require.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Refreshes.WithLabelValues(metrics.ResultSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Retries))

	require.NoError(t, a.Logout(context.Background()))
	require.True(t, a.Status().IsEmpty())
	require.EqualValues(t, 3, a.Status().Sequence)

	resp = call(t, a, p, session.None)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMemoryBackendIsPerProcess(t *testing.T) {
	p := authtest.New(t)
	setEnv(t, p, config.BackendMemory)

	login(t, newApp(t), p)
	require.True(t, newApp(t).Status().IsEmpty())
}

func TestEncryptedFileBackend(t *testing.T) {
	p := authtest.New(t)
	setEnv(t, p, config.BackendFile)
	dir := filepath.Join(t.TempDir(), "creds")
	t.Setenv("STORAGE_DIR", dir)
	t.Setenv("STORAGE_PASSPHRASE", "correct horse battery staple")

	state := login(t, newApp(t), p)

	raw, err := os.ReadFile(filepath.Join(dir, credentials.StorageKey))
	require.NoError(t, err)
	require.NotContains(t, string(raw), state.AccessToken)
	require.NotContains(t, string(raw), state.RefreshToken)

	t.Run("state survives a restart", func(t *testing.T) {
		restored := newApp(t).Status()
		require.True(t, state.Equal(restored))
	})

	t.Run("wrong passphrase starts empty", func(t *testing.T) {
		t.Setenv("STORAGE_PASSPHRASE", "not the passphrase")
		require.True(t, newApp(t).Status().IsEmpty())
	})
}

func TestPlainFileBackend(t *testing.T) {
	p := authtest.New(t)
	setEnv(t, p, config.BackendFile)
	dir := t.TempDir()
	t.Setenv("STORAGE_DIR", dir)

	state := login(t, newApp(t), p)
	raw, err := os.ReadFile(filepath.Join(dir, credentials.StorageKey))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), state.AccessToken))
}
