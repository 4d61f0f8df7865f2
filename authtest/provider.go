// Package authtest runs an in-process OIDC provider and protected API for tests: discovery,
// JWKS, a non-interactive authorization endpoint, the token endpoint and bearer-checked
// API routes under /api/.
package authtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/oauthmodel"
)

const (
	DefaultClientID = "mobile-app"

	contentTypeJSON = "application/json; charset=utf-8"
)

type grantError struct {
	code        string
	description string
}

func (e grantError) Error() string {
	return e.description
}

type pendingCode struct {
	clientID    string
	redirectURI string
	challenge   string
	method      oauthmodel.CodeMethodType
	nonce       string
	scope       string
}

// Provider is a fake identity provider backed by httptest.Server.
type Provider struct {
	Server *httptest.Server

	clientID         string
	accessTokenTTL   time.Duration
	rotateRefresh    bool
	omitExpiresIn    bool
	refreshIDToken   bool
	discoveryDelay   time.Duration
	keys             *keyPair
	idTokenNonceFunc func(nonce string) string

	mu            sync.Mutex
	codes         map[string]pendingCode
	refreshTokens map[string]string
	accessTokens  map[string]bool
	idTokens      map[string]bool
	denyNext      string
	refreshError  string
	malformedNext string
	counts        map[string]int
	apiTokens     []string
}

type Option func(*Provider)

func WithClientID(clientID string) Option {
	return func(p *Provider) {
		p.clientID = clientID
	}
}

func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.accessTokenTTL = ttl
	}
}

// WithoutRefreshRotation keeps refresh tokens valid across refreshes and omits them from
// refresh responses.
func WithoutRefreshRotation() Option {
	return func(p *Provider) {
		p.rotateRefresh = false
	}
}

// WithoutExpiresIn omits expires_in from token responses.
func WithoutExpiresIn() Option {
	return func(p *Provider) {
		p.omitExpiresIn = true
	}
}

// WithRefreshIDToken includes a new ID token in refresh responses.
func WithRefreshIDToken() Option {
	return func(p *Provider) {
		p.refreshIDToken = true
	}
}

func WithDiscoveryDelay(d time.Duration) Option {
	return func(p *Provider) {
		p.discoveryDelay = d
	}
}

// WithIDTokenNonce rewrites the nonce put into ID tokens, to simulate replayed tokens.
func WithIDTokenNonce(fn func(nonce string) string) Option {
	return func(p *Provider) {
		p.idTokenNonceFunc = fn
	}
}

// New starts a provider that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Provider {
	t.Helper()
	keys, err := generateKeyPair(uuid.NewString())
	if err != nil {
		t.Fatalf("authtest: %v", err)
	}
	p := &Provider{
		clientID:       DefaultClientID,
		accessTokenTTL: 15 * time.Minute,
		rotateRefresh:  true,
		keys:           keys,
		codes:          make(map[string]pendingCode),
		refreshTokens:  make(map[string]string),
		accessTokens:   make(map[string]bool),
		idTokens:       make(map[string]bool),
		counts:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.wellKnown)
	mux.HandleFunc("/jwks", p.jwksHandler)
	mux.HandleFunc("/authorize", p.authorize)
	mux.HandleFunc("/token", p.token)
	mux.HandleFunc("/api/", p.api)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *Provider) Issuer() string {
	return p.Server.URL
}

func (p *Provider) ClientID() string {
	return p.clientID
}

func (p *Provider) count(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[key]++
}

// Requests returns how many requests hit the named counter: "discovery", "authorize",
// "token:authorization_code", "token:refresh_token", "api", "api:unauthorized".
func (p *Provider) Requests(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[key]
}

// RefreshRequests is Requests("token:refresh_token").
func (p *Provider) RefreshRequests() int {
	return p.Requests("token:" + string(oauthmodel.RefreshTokenGrant))
}

// APITokens returns the bearer tokens presented to /api/ in arrival order.
func (p *Provider) APITokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.apiTokens...)
}

// ExpireAccessTokens invalidates every access and ID token issued so far.
func (p *Provider) ExpireAccessTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokens = make(map[string]bool)
	p.idTokens = make(map[string]bool)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (p *Provider) RevokeRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshTokens = make(map[string]string)
}

// DenyNextAuthorization makes the next authorization request redirect back with errorCode.
func (p *Provider) DenyNextAuthorization(errorCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyNext = errorCode
}

// FailRefresh makes every refresh grant fail with the OAuth error code; "" restores success.
func (p *Provider) FailRefresh(errorCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshError = errorCode
}

// MalformNextTokenResponse replaces the next successful token response body with body.
func (p *Provider) MalformNextTokenResponse(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.malformedNext = body
}

// Authorize performs the interactive step for authURL as if the user consented and returns
// the redirect the provider issued. The redirect is not followed.
func (p *Provider) Authorize(ctx context.Context, authURL string) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("authorize: unexpected status %d", resp.StatusCode)
	}
	return url.Parse(resp.Header.Get("Location"))
}

func (p *Provider) wellKnown(w http.ResponseWriter, r *http.Request) {
	p.count("discovery")
	if p.discoveryDelay > 0 {
		time.Sleep(p.discoveryDelay)
	}
	issuer := p.Issuer()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"jwks_uri":                              issuer + "/jwks",
		"end_session_endpoint":                  issuer + "/logout",
		"response_types_supported":              []string{string(oauthmodel.CodeResponseType)},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{rs256},
		"token_endpoint_auth_methods_supported": []string{"none"},
		"grant_types_supported":                 []string{string(oauthmodel.AuthorizationCodeGrant), string(oauthmodel.RefreshTokenGrant)},
		"code_challenge_methods_supported":      []string{string(oauthmodel.CodeMethodTypeS256)},
	})
}

func (p *Provider) jwksHandler(w http.ResponseWriter, r *http.Request) {
	p.count("jwks")
	writeJSON(w, http.StatusOK, p.keys.jwks())
}

func (p *Provider) authorize(w http.ResponseWriter, r *http.Request) {
	p.count("authorize")
	params := oauthmodel.ParseAuthorizationParameters(r.URL.Query())
	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.ClientID != p.clientID {
		http.Error(w, "unknown client", http.StatusBadRequest)
		return
	}

	redirect, err := url.Parse(params.RedirectURI)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := redirect.Query()
	q.Set(oauthmodel.ParamState, params.State)

	p.mu.Lock()
	deny := p.denyNext
	p.denyNext = ""
	if deny == "" {
		code := uuid.NewString()
		p.codes[code] = pendingCode{
			clientID:    params.ClientID,
			redirectURI: params.RedirectURI,
			challenge:   params.CodeChallenge,
			method:      params.CodeChallengeMethod,
			nonce:       params.Nonce,
			scope:       params.Scope,
		}
		q.Set(oauthmodel.ParamCode, code)
	}
	p.mu.Unlock()

	if deny != "" {
		q.Set(oauthmodel.ParamError, deny)
		q.Set(oauthmodel.ParamErrorDescription, "The resource owner denied the request")
	}
	redirect.RawQuery = q.Encode()
	w.Header().Set("Location", redirect.String())
	w.WriteHeader(http.StatusFound)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOAuthError(w, oauthmodel.ErrorInvalidRequest, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, oauthmodel.ErrorInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
		return
	}
	req := oauthmodel.ParseTokenRequest(r.PostForm)
	p.count("token:" + string(req.GrantType))
	if err := req.Validate(); err != nil {
		code := oauthmodel.ErrorInvalidRequest
		if req.GrantType != oauthmodel.AuthorizationCodeGrant && req.GrantType != oauthmodel.RefreshTokenGrant {
			code = oauthmodel.ErrorUnsupportedGrantType
		}
		writeOAuthError(w, code, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientID != p.clientID {
		writeOAuthError(w, oauthmodel.ErrorInvalidClient, "unknown client", http.StatusUnauthorized)
		return
	}

	var (
		resp *oauthmodel.TokenResponse
		err  error
	)
	switch req.GrantType {
	case oauthmodel.AuthorizationCodeGrant:
		resp, err = p.exchangeCode(req)
	case oauthmodel.RefreshTokenGrant:
		resp, err = p.refresh(req)
	}
	if err != nil {
		code := oauthmodel.ErrorInvalidGrant
		var ge grantError
		if errors.As(err, &ge) {
			code = ge.code
		}
		writeOAuthError(w, code, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	malformed := p.malformedNext
	p.malformedNext = ""
	p.mu.Unlock()

	w.Header().Set("Cache-Control", "no-store")
	if malformed != "" {
		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write([]byte(malformed))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *Provider) exchangeCode(req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	p.mu.Lock()
	pending, ok := p.codes[req.Code]
	delete(p.codes, req.Code)
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown or used authorization code")
	}
	if pending.clientID != req.ClientID || pending.redirectURI != req.RedirectURI {
		return nil, fmt.Errorf("client or redirect_uri mismatch")
	}
	if err := oauthmodel.ValidateCodeVerifier(req.CodeVerifier, pending.challenge, pending.method); err != nil {
		return nil, err
	}

	nonce := pending.nonce
	if p.idTokenNonceFunc != nil {
		nonce = p.idTokenNonceFunc(nonce)
	}
	return p.issue(pending.scope, nonce, true, true)
}

func (p *Provider) refresh(req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	p.mu.Lock()
	scope, ok := p.refreshTokens[req.RefreshToken]
	failWith := p.refreshError
	if ok && p.rotateRefresh && failWith == "" {
		delete(p.refreshTokens, req.RefreshToken)
	}
	p.mu.Unlock()

	if failWith != "" {
		return nil, grantError{code: failWith, description: "refresh rejected by test provider"}
	}
	if !ok {
		return nil, fmt.Errorf("refresh token is invalid or revoked")
	}
	return p.issue(scope, "", p.refreshIDToken, p.rotateRefresh)
}

func (p *Provider) issue(scope, nonce string, withIDToken, withRefreshToken bool) (*oauthmodel.TokenResponse, error) {
	accessToken, err := p.createAccessToken(scope)
	if err != nil {
		return nil, err
	}
	resp := &oauthmodel.TokenResponse{
		AccessToken: utils.Ptr(accessToken),
		TokenType:   "Bearer",
		Scope:       scope,
	}
	if !p.omitExpiresIn {
		resp.ExpiresIn = int(p.accessTokenTTL.Seconds())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokens[accessToken] = true

	if withIDToken && strings.Contains(" "+scope+" ", " openid ") {
		idToken, err := p.createIDToken(nonce)
		if err != nil {
			return nil, err
		}
		resp.IdToken = utils.Ptr(idToken)
		p.idTokens[idToken] = true
	}
	if withRefreshToken {
		refreshToken, err := createRefreshToken()
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = utils.Ptr(refreshToken)
		p.refreshTokens[refreshToken] = scope
	}
	return resp, nil
}

// api accepts any live access or ID token; the caller decides which one a route needs.
func (p *Provider) api(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	p.mu.Lock()
	p.counts["api"]++
	p.apiTokens = append(p.apiTokens, token)
	valid := token != "" && (p.accessTokens[token] || p.idTokens[token])
	if !valid {
		p.counts["api:unauthorized"]++
	}
	p.mu.Unlock()

	if !valid {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeOAuthError(w, "invalid_token", "token is missing, expired or revoked", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sub": testSubject, "path": r.URL.Path})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOAuthError writes an OAuth2 error response
func writeOAuthError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, oauthmodel.ErrorResponse{Error: errorCode, ErrorDescription: description})
}
