package authorization_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/authorization"
	"github.com/jrsteele09/go-auth-client/authtest"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/discovery"
	"github.com/jrsteele09/go-auth-client/oauthmodel"
	"github.com/jrsteele09/go-auth-client/securestore/storefake"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// hookedExchanger runs the real exchange detached from the caller's context, calling before
// and after around it.
type hookedExchanger struct {
	authorization.CodeExchanger
	before func()
	after  func()
}

func (h *hookedExchanger) ExchangeCode(ctx context.Context, doc discovery.Document, code, verifier, nonce string) (credentials.Tokens, error) {
	if h.before != nil {
		h.before()
	}
	tokens, err := h.CodeExchanger.ExchangeCode(context.WithoutCancel(ctx), doc, code, verifier, nonce)
	if h.after != nil {
		h.after()
	}
	return tokens, err
}

const redirectURI = "http://127.0.0.1:8765/callback"

type fixture struct {
	provider    *authtest.Provider
	kv          *storefake.Store
	session     *session.Coordinator
	coordinator *authorization.Coordinator
}

func setupFixture(t *testing.T, providerOpts ...authtest.Option) *fixture {
	t.Helper()
	p := authtest.New(t, providerOpts...)
	return setupFixtureFor(t, p, p.Issuer())
}

func setupFixtureFor(t *testing.T, p *authtest.Provider, issuer string) *fixture {
	t.Helper()
	return setupFixtureWith(t, p, issuer, nil)
}

// setupFixtureWith lets a test wrap the code exchanger the coordinator sees.
func setupFixtureWith(t *testing.T, p *authtest.Provider, issuer string, wrap func(authorization.CodeExchanger) authorization.CodeExchanger) *fixture {
	t.Helper()
	cfg := authorization.Config{
		Issuer:      issuer,
		ClientID:    p.ClientID(),
		RedirectURI: redirectURI,
		Scopes:      []string{"openid", "profile", "offline_access"},
	}
	d := discovery.NewClient(discovery.WithLogger(zerolog.Nop()))
	ex := token.NewExchanger(d, token.Config{
		Issuer:      cfg.Issuer,
		ClientID:    cfg.ClientID,
		RedirectURI: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
	}, token.WithLogger(zerolog.Nop()))
	kv := storefake.New()
	store := credentials.NewStore(kv, credentials.WithLogger(zerolog.Nop()))
	sc := session.NewCoordinator(context.Background(), store, ex, session.WithLogger(zerolog.Nop()))
	var exchanger authorization.CodeExchanger = ex
	if wrap != nil {
		exchanger = wrap(ex)
	}
	ac := authorization.NewCoordinator(cfg, d, exchanger, sc, authorization.WithLogger(zerolog.Nop()))
	return &fixture{provider: p, kv: kv, session: sc, coordinator: ac}
}

// redirect begins an authorization and lets the provider answer it.
func (f *fixture) redirect(t *testing.T, hint string) (authorization.Descriptor, authorization.CallbackParameters) {
	t.Helper()
	desc, err := f.coordinator.Begin(context.Background(), hint)
	require.NoError(t, err)
	loc, err := f.provider.Authorize(context.Background(), desc.URL)
	require.NoError(t, err)
	params, err := authorization.CallbackParametersFromURL(loc)
	require.NoError(t, err)
	return desc, params
}

func TestBeginDescriptor(t *testing.T) {
	f := setupFixture(t)

	desc, err := f.coordinator.Begin(context.Background(), "google")
	require.NoError(t, err)
	require.Equal(t, authorization.PhaseAuthorizing, f.coordinator.Phase())
	require.Equal(t, redirectURI, desc.RedirectURI)
	require.Equal(t, f.provider.Issuer()+"/authorize", desc.Document.AuthorizationEndpoint)

	u, err := url.Parse(desc.URL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, f.provider.ClientID(), q.Get(oauthmodel.ParamClientID))
	require.Equal(t, "code", q.Get(oauthmodel.ParamResponseType))
	require.Equal(t, redirectURI, q.Get(oauthmodel.ParamRedirectURI))
	require.Equal(t, "openid profile offline_access", q.Get(oauthmodel.ParamScope))
	require.Equal(t, "S256", q.Get(oauthmodel.ParamCodeChallengeMethod))
	require.NotEmpty(t, q.Get(oauthmodel.ParamCodeChallenge))
	require.Equal(t, "google", q.Get(oauthmodel.ParamIdentityProvider))
	require.Equal(t, desc.State, q.Get(oauthmodel.ParamState))

	pending, ok := f.coordinator.Pending()
	require.True(t, ok)
	require.Equal(t, desc.State, pending.State)
	require.Equal(t, pending.Nonce, q.Get(oauthmodel.ParamNonce))
	require.NoError(t, oauthmodel.ValidateCodeVerifier(pending.CodeVerifier, q.Get(oauthmodel.ParamCodeChallenge), oauthmodel.CodeMethodTypeS256))

	t.Run("no hint omits identity_provider", func(t *testing.T) {
		desc, err := f.coordinator.Begin(context.Background(), "")
		require.NoError(t, err)
		u, err := url.Parse(desc.URL)
		require.NoError(t, err)
		require.False(t, u.Query().Has(oauthmodel.ParamIdentityProvider))
	})

	t.Run("each begin uses a fresh state and verifier", func(t *testing.T) {
		first, _ := f.coordinator.Pending()
		_, err := f.coordinator.Begin(context.Background(), "")
		require.NoError(t, err)
		second, _ := f.coordinator.Pending()
		require.NotEqual(t, first.State, second.State)
		require.NotEqual(t, first.CodeVerifier, second.CodeVerifier)
		require.NotEqual(t, first.Nonce, second.Nonce)
	})
}

func TestLogin(t *testing.T) {
	f := setupFixture(t)

	_, params := f.redirect(t, "")
	res, err := f.coordinator.Complete(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, authorization.OutcomeAuthorized, res.Outcome)
	require.EqualValues(t, 1, res.State.Sequence)
	require.NotEmpty(t, res.State.AccessToken)
	require.NotEmpty(t, res.State.IDToken)
	require.NotEmpty(t, res.State.RefreshToken)
	require.False(t, res.State.Expired())
	require.Equal(t, authorization.PhaseIdle, f.coordinator.Phase())

	require.True(t, res.State.Equal(f.session.Snapshot()))
	raw, ok := f.kv.Raw(credentials.StorageKey)
	require.True(t, ok)
	persisted, err := credentials.Unmarshal(raw)
	require.NoError(t, err)
	require.True(t, res.State.Equal(persisted))

	t.Run("callback replay is rejected", func(t *testing.T) {
		_, err := f.coordinator.Complete(context.Background(), params)
		require.ErrorIs(t, err, authorization.ErrNoPendingAuthorization)
	})

	t.Run("second login advances the sequence", func(t *testing.T) {
		_, params := f.redirect(t, "")
		res2, err := f.coordinator.Complete(context.Background(), params)
		require.NoError(t, err)
		require.EqualValues(t, 2, res2.State.Sequence)
		require.NotEqual(t, res.State.AccessToken, res2.State.AccessToken)
	})
}

func TestStateMismatch(t *testing.T) {
	f := setupFixture(t)
	_, params := f.redirect(t, "")
	before := f.session.Snapshot()

	forged := params
	forged.State = "forged-state-value"
	_, err := f.coordinator.Complete(context.Background(), forged)
	require.ErrorIs(t, err, authorization.ErrStateMismatch)
	require.Equal(t, authorization.PhaseAuthorizing, f.coordinator.Phase())
	require.True(t, before.Equal(f.session.Snapshot()))
	require.Zero(t, f.kv.Sets())
	require.Zero(t, f.provider.Requests("token:authorization_code"))

	res, err := f.coordinator.Complete(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, authorization.OutcomeAuthorized, res.Outcome)
}

func TestSupersededAuthorization(t *testing.T) {
	f := setupFixture(t)
	_, stale := f.redirect(t, "")
	_, current := f.redirect(t, "")

	_, err := f.coordinator.Complete(context.Background(), stale)
	require.ErrorIs(t, err, authorization.ErrStateMismatch)

	res, err := f.coordinator.Complete(context.Background(), current)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.State.Sequence)
}

func TestDenied(t *testing.T) {
	f := setupFixture(t)
	f.provider.DenyNextAuthorization(oauthmodel.ErrorAccessDenied)

	_, params := f.redirect(t, "")
	res, err := f.coordinator.Complete(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, authorization.OutcomeDenied, res.Outcome)
	require.Equal(t, oauthmodel.ErrorAccessDenied, res.Error)
	require.NotEmpty(t, res.ErrorDescription)
	require.True(t, f.session.Snapshot().IsEmpty())
	require.Equal(t, authorization.PhaseIdle, f.coordinator.Phase())
}

func TestCancelled(t *testing.T) {
	f := setupFixture(t)
	_, err := f.coordinator.Begin(context.Background(), "")
	require.NoError(t, err)

	res, err := f.coordinator.Complete(context.Background(), authorization.CallbackParameters{Cancelled: true})
	require.NoError(t, err)
	require.Equal(t, authorization.OutcomeCancelled, res.Outcome)
	require.Equal(t, authorization.PhaseIdle, f.coordinator.Phase())
	require.True(t, f.session.Snapshot().IsEmpty())
}

func TestCompleteWithoutBegin(t *testing.T) {
	f := setupFixture(t)
	_, err := f.coordinator.Complete(context.Background(), authorization.CallbackParameters{State: "x", Code: "y"})
	require.ErrorIs(t, err, authorization.ErrNoPendingAuthorization)
}

func TestMissingCode(t *testing.T) {
	f := setupFixture(t)
	desc, err := f.coordinator.Begin(context.Background(), "")
	require.NoError(t, err)

	_, err = f.coordinator.Complete(context.Background(), authorization.CallbackParameters{State: desc.State})
	require.ErrorIs(t, err, authorization.ErrTokenExchange)
	require.True(t, f.session.Snapshot().IsEmpty())
}

func TestConfigurationError(t *testing.T) {
	p := authtest.New(t)
	dead := httptest.NewServer(nil)
	issuer := dead.URL
	dead.Close()

	f := setupFixtureFor(t, p, issuer)
	_, err := f.coordinator.Begin(context.Background(), "")
	require.ErrorIs(t, err, authorization.ErrConfiguration)
	require.ErrorIs(t, err, discovery.ErrDiscovery)
	require.Equal(t, authorization.PhaseIdle, f.coordinator.Phase())
}

func TestIDTokenNonceMismatch(t *testing.T) {
	f := setupFixture(t, authtest.WithIDTokenNonce(func(string) string { return "replayed-nonce" }))

	_, params := f.redirect(t, "")
	_, err := f.coordinator.Complete(context.Background(), params)
	require.ErrorIs(t, err, authorization.ErrTokenExchange)
	require.ErrorIs(t, err, token.ErrIDTokenInvalid)
	require.True(t, f.session.Snapshot().IsEmpty())
	require.Zero(t, f.kv.Sets())
}

func TestExchangeRejected(t *testing.T) {
	f := setupFixture(t)
	_, params := f.redirect(t, "")
	params.Code = "not-a-code"

	_, err := f.coordinator.Complete(context.Background(), params)
	require.ErrorIs(t, err, authorization.ErrTokenExchange)
	var pe *token.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, oauthmodel.ErrorInvalidGrant, pe.Code)
}

func TestCancelledExchangeKeepsPending(t *testing.T) {
	f := setupFixture(t)
	desc, params := f.redirect(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.coordinator.Complete(ctx, params)
	require.ErrorIs(t, err, context.Canceled)

	pending, ok := f.coordinator.Pending()
	require.True(t, ok)
	require.Equal(t, desc.State, pending.State)

	res, err := f.coordinator.Complete(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, authorization.OutcomeAuthorized, res.Outcome)
}

func TestAbandon(t *testing.T) {
	f := setupFixture(t)
	_, params := f.redirect(t, "")
	f.coordinator.Abandon()
	require.Equal(t, authorization.PhaseIdle, f.coordinator.Phase())

	_, err := f.coordinator.Complete(context.Background(), params)
	require.ErrorIs(t, err, authorization.ErrNoPendingAuthorization)
}

func TestPhaseDuringExchange(t *testing.T) {
	p := authtest.New(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f := setupFixtureWith(t, p, p.Issuer(), func(inner authorization.CodeExchanger) authorization.CodeExchanger {
		return &hookedExchanger{CodeExchanger: inner, before: func() {
			close(entered)
			<-release
		}}
	})
	_, params := f.redirect(t, "")

	done := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Complete(context.Background(), params)
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("exchange never started")
	}
	require.Equal(t, authorization.PhaseAuthorizing, f.coordinator.Phase())
	_, ok := f.coordinator.Pending()
	require.False(t, ok, "the code must not be redeemable twice")

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, authorization.PhaseIdle, f.coordinator.Phase())
}

func TestCallerGoneAfterExchangeStillCommits(t *testing.T) {
	p := authtest.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := setupFixtureWith(t, p, p.Issuer(), func(inner authorization.CodeExchanger) authorization.CodeExchanger {
		return &hookedExchanger{CodeExchanger: inner, after: cancel}
	})
	_, params := f.redirect(t, "")

	res, err := f.coordinator.Complete(ctx, params)
	require.NoError(t, err)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	require.Equal(t, authorization.OutcomeAuthorized, res.Outcome)
	require.EqualValues(t, 1, res.State.Sequence)
	require.True(t, res.State.Equal(f.session.Snapshot()))
	_, ok := f.kv.Raw(credentials.StorageKey)
	require.True(t, ok)
}
