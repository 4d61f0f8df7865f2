// Package token talks to the provider's token endpoint: authorization code exchange and the
// refresh grant, mapping responses into credentials.Tokens.
package token

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/discovery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Resolver resolves the provider endpoints for an issuer.
type Resolver interface {
	Discover(ctx context.Context, issuerURL string) (discovery.Document, error)
}

// Config is the client registration used on every token request.
type Config struct {
	Issuer      string
	ClientID    string
	RedirectURI string
	Scopes      []string
}

type Exchanger struct {
	cfg           Config
	resolver      Resolver
	httpClient    *http.Client
	verifyIDToken bool
	logger        zerolog.Logger

	mu        sync.Mutex
	verifiers map[string]*oidc.IDTokenVerifier
}

type Option func(*Exchanger)

func WithHTTPClient(hc *http.Client) Option {
	return func(e *Exchanger) {
		e.httpClient = hc
	}
}

// WithIDTokenVerification checks ID token signatures against the provider JWKS, the audience
// and, on code exchange, the nonce.
func WithIDTokenVerification(enabled bool) Option {
	return func(e *Exchanger) {
		e.verifyIDToken = enabled
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Exchanger) {
		e.logger = l
	}
}

func NewExchanger(resolver Resolver, cfg Config, opts ...Option) *Exchanger {
	e := &Exchanger{
		cfg:        cfg,
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Logger,
		verifiers:  make(map[string]*oidc.IDTokenVerifier),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OAuth2Config builds the x/oauth2 configuration for doc. Public clients send client_id in
// the request body and have no secret.
func (e *Exchanger) OAuth2Config(doc discovery.Document) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    e.cfg.ClientID,
		RedirectURL: e.cfg.RedirectURI,
		Scopes:      append([]string(nil), e.cfg.Scopes...),
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (e *Exchanger) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

// ExchangeCode redeems an authorization code with its PKCE verifier.
func (e *Exchanger) ExchangeCode(ctx context.Context, doc discovery.Document, code, verifier, nonce string) (credentials.Tokens, error) {
	tok, err := e.OAuth2Config(doc).Exchange(e.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return credentials.Tokens{}, classify(ctx, err)
	}
	tokens, err := mapToken(tok)
	if err != nil {
		return credentials.Tokens{}, err
	}
	if err := e.verify(ctx, doc, tokens.IDToken, nonce); err != nil {
		return credentials.Tokens{}, err
	}
	e.logger.Debug().Bool("refresh_token", tokens.RefreshToken != "").Msg("authorization code exchanged")
	return tokens, nil
}

// Refresh performs the refresh grant against the issuer's token endpoint.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (credentials.Tokens, error) {
	if refreshToken == "" {
		return credentials.Tokens{}, ErrNoRefreshToken
	}
	doc, err := e.resolver.Discover(ctx, e.cfg.Issuer)
	if err != nil {
		return credentials.Tokens{}, err
	}
	ts := e.OAuth2Config(doc).TokenSource(e.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return credentials.Tokens{}, classify(ctx, err)
	}
	tokens, err := mapToken(tok)
	if err != nil {
		return credentials.Tokens{}, err
	}
	if err := e.verify(ctx, doc, tokens.IDToken, ""); err != nil {
		return credentials.Tokens{}, err
	}
	// x/oauth2 copies the request refresh token into the response when the provider omits it.
	if tokens.RefreshToken == refreshToken {
		e.logger.Debug().Msg("refresh token not rotated")
	}
	return tokens, nil
}

func mapToken(tok *oauth2.Token) (credentials.Tokens, error) {
	if tok == nil || tok.AccessToken == "" {
		return credentials.Tokens{}, fmt.Errorf("%w: missing access_token", ErrMapping)
	}
	tokens := credentials.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if raw := tok.Extra("id_token"); raw != nil {
		idToken, ok := raw.(string)
		if !ok {
			return credentials.Tokens{}, fmt.Errorf("%w: id_token is %T", ErrMapping, raw)
		}
		tokens.IDToken = idToken
	}
	if raw := tok.Extra("scope"); raw != nil {
		scope, ok := raw.(string)
		if !ok {
			return credentials.Tokens{}, fmt.Errorf("%w: scope is %T", ErrMapping, raw)
		}
		tokens.Scope = scope
	}
	if tokens.Expiry.IsZero() {
		tokens.Expiry = jwtExpiry(tokens.AccessToken)
	}
	return tokens, nil
}

// jwtExpiry reads exp from a JWT access token without verifying it. Opaque tokens give the zero time.
func jwtExpiry(accessToken string) time.Time {
	if strings.Count(accessToken, ".") != 2 {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func (e *Exchanger) verify(ctx context.Context, doc discovery.Document, rawIDToken, nonce string) error {
	if !e.verifyIDToken || rawIDToken == "" {
		return nil
	}
	if doc.JWKSURI == "" {
		return fmt.Errorf("%w: provider publishes no jwks_uri", ErrIDTokenInvalid)
	}
	idToken, err := e.verifier(doc).Verify(oidc.ClientContext(ctx, e.httpClient), rawIDToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrIDTokenInvalid, err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return fmt.Errorf("%w: nonce mismatch", ErrIDTokenInvalid)
	}
	return nil
}

func (e *Exchanger) verifier(doc discovery.Document) *oidc.IDTokenVerifier {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.verifiers[doc.JWKSURI]; ok {
		return v
	}
	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), e.httpClient), doc.JWKSURI)
	v := oidc.NewVerifier(doc.Issuer, keySet, &oidc.Config{ClientID: e.cfg.ClientID})
	e.verifiers[doc.JWKSURI] = v
	return v
}
