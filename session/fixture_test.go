package session_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/jrsteele09/go-auth-client/securestore/storefake"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeRefresher hands out access-2, access-3, ... on each call.
type fakeRefresher struct {
	calls atomic.Int64
	gate  chan struct{}
	err   error
	// keepRefresh leaves RefreshToken empty in responses.
	keepRefresh bool
	// keepIDToken leaves IDToken empty in responses.
	keepIDToken bool
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (credentials.Tokens, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return credentials.Tokens{}, ctx.Err()
		}
	}
	if f.err != nil {
		return credentials.Tokens{}, f.err
	}
	tokens := credentials.Tokens{
		AccessToken: fmt.Sprintf("access-%d", n+1),
		IDToken:     fmt.Sprintf("id-%d", n+1),
	}
	if f.keepIDToken {
		tokens.IDToken = ""
	}
	if !f.keepRefresh {
		tokens.RefreshToken = fmt.Sprintf("refresh-%d", n+1)
	}
	return tokens, nil
}

// fakeAPI accepts bearer tokens in its accepted set and rejects everything else with 401.
type fakeAPI struct {
	server *httptest.Server

	mu           sync.Mutex
	accepted     map[string]bool
	requests     int
	unauthorized int
	tokens       []string
	bodies       []string
	deviceTokens []string
}

func newFakeAPI(t *testing.T, accepted ...string) *fakeAPI {
	t.Helper()
	api := &fakeAPI{accepted: make(map[string]bool)}
	for _, tok := range accepted {
		api.accepted[tok] = true
	}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		api.mu.Lock()
		api.requests++
		api.tokens = append(api.tokens, token)
		api.bodies = append(api.bodies, string(body))
		api.deviceTokens = append(api.deviceTokens, r.Header.Get(session.DefaultDeviceTokenHeader))
		ok := api.accepted[token]
		if !ok {
			api.unauthorized++
		}
		api.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) accept(tokens ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, tok := range tokens {
		a.accepted[tok] = true
	}
}

func (a *fakeAPI) counts() (requests, unauthorized int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests, a.unauthorized
}

func (a *fakeAPI) seenTokens() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.tokens...)
}

type fixture struct {
	kv          *storefake.Store
	refresher   *fakeRefresher
	metrics     *metrics.Metrics
	coordinator *session.Coordinator
	selector    *session.Selector
	api         *fakeAPI
	client      *session.Client
}

func setupFixture(t *testing.T, initial credentials.State, accepted ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	kv := storefake.New()
	store := credentials.NewStore(kv, credentials.WithLogger(zerolog.Nop()))
	require.NoError(t, store.Save(ctx, initial))

	f := &fixture{
		kv:        kv,
		refresher: &fakeRefresher{},
		metrics:   metrics.New(nil),
		api:       newFakeAPI(t, accepted...),
	}
	f.coordinator = session.NewCoordinator(ctx, store, f.refresher,
		session.WithMetrics(f.metrics), session.WithLogger(zerolog.Nop()))
	f.selector = session.NewSelector(f.coordinator,
		session.WithDeviceTokenSource(session.DeviceTokenFunc(func() string { return "device-abc" })))
	f.client = session.NewClient(f.api.server.Client(), f.selector, f.coordinator,
		session.WithClientMetrics(f.metrics), session.WithClientLogger(zerolog.Nop()))
	return f
}

func (f *fixture) get(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.api.server.URL+"/profile", nil)
	require.NoError(t, err)
	return req
}

func loggedIn() credentials.State {
	return credentials.State{
		AccessToken:  "access-1",
		IDToken:      "id-1",
		RefreshToken: "refresh-1",
		Scope:        "openid offline_access",
		Sequence:     1,
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
