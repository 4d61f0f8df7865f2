// Package discovery resolves provider endpoints from an OIDC issuer and caches them for the
// life of the process.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var ErrDiscovery = errors.New("provider discovery failed")

// Document is the subset of the provider metadata the client needs.
type Document struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	JWKSURI               string
	EndSessionEndpoint    string
}

// metadataClaims are read from the raw discovery document for fields oidc.Provider does not expose.
type metadataClaims struct {
	JWKSURI            string   `json:"jwks_uri"`
	EndSessionEndpoint string   `json:"end_session_endpoint"`
	CodeMethods        []string `json:"code_challenge_methods_supported"`
}

// Client fetches discovery documents. Results are memoized per issuer and concurrent
// lookups of the same issuer share one fetch.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]Document
	group singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Logger,
		cache:      make(map[string]Document),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(issuer string) string {
	return strings.TrimSuffix(issuer, "/")
}

func (c *Client) cached(key string) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.cache[key]
	return doc, ok
}

// Discover returns the document for issuerURL. A caller whose ctx is cancelled stops waiting
// but the shared fetch continues for the others. Failures are not cached.
func (c *Client) Discover(ctx context.Context, issuerURL string) (Document, error) {
	key := cacheKey(issuerURL)
	if key == "" {
		return Document{}, fmt.Errorf("%w: empty issuer", ErrDiscovery)
	}
	if doc, ok := c.cached(key); ok {
		return doc, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if doc, ok := c.cached(key); ok {
			return doc, nil
		}
		doc, err := c.fetch(fetchCtx, issuerURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("issuer", issuerURL).Msg("discovery failed")
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = doc
		c.mu.Unlock()
		c.logger.Debug().Str("issuer", doc.Issuer).Msg("discovery document cached")
		return doc, nil
	})

	select {
	case <-ctx.Done():
		return Document{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Document{}, res.Err
		}
		return res.Val.(Document), nil
	}
}

func (c *Client) fetch(ctx context.Context, issuerURL string) (Document, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), issuerURL)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	var claims metadataClaims
	if err := provider.Claims(&claims); err != nil {
		return Document{}, fmt.Errorf("%w: decode metadata: %w", ErrDiscovery, err)
	}

	endpoint := provider.Endpoint()
	doc := Document{
		Issuer:                issuerURL,
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
		JWKSURI:               claims.JWKSURI,
		EndSessionEndpoint:    claims.EndSessionEndpoint,
	}
	if doc.AuthorizationEndpoint == "" {
		return Document{}, fmt.Errorf("%w: missing authorization_endpoint", ErrDiscovery)
	}
	if doc.TokenEndpoint == "" {
		return Document{}, fmt.Errorf("%w: missing token_endpoint", ErrDiscovery)
	}
	if len(claims.CodeMethods) > 0 && !slices.Contains(claims.CodeMethods, "S256") {
		c.logger.Warn().Strs("methods", claims.CodeMethods).Msg("provider does not advertise S256 PKCE")
	}
	return doc, nil
}

// Forget drops the cached document for issuerURL so the next Discover fetches it again.
func (c *Client) Forget(issuerURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, cacheKey(issuerURL))
}
