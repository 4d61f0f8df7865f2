// Package authorization drives the interactive authorization code flow with PKCE and the
// code exchange that produces the first credential state of a session.
package authorization

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/discovery"
	internalerrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/oauthmodel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var (
	// ErrConfiguration means the provider metadata could not be resolved or the client
	// configuration produced an invalid request. Retrying later may succeed.
	ErrConfiguration          = errors.New("authorization configuration error")
	ErrTokenExchange          = errors.New("token exchange failed")
	ErrStateMismatch          = errors.New("authorization state mismatch")
	ErrNoPendingAuthorization = errors.New("no pending authorization")
)

// Phase is the coordinator's position in the flow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAuthorizing
)

func (p Phase) String() string {
	if p == PhaseAuthorizing {
		return "authorizing"
	}
	return "idle"
}

// Outcome distinguishes how an interactive step ended. Denied and Cancelled are not errors.
type Outcome int

const (
	OutcomeAuthorized Outcome = iota
	OutcomeDenied
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomeDenied:
		return "denied"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is returned by Complete when the flow ended without an error.
type Result struct {
	Outcome Outcome
	// State is the committed credential state when Outcome is OutcomeAuthorized.
	State credentials.State
	// Error and ErrorDescription are the provider's values when Outcome is OutcomeDenied.
	Error            string
	ErrorDescription string
}

// Descriptor is what the UI needs to launch the interactive step.
type Descriptor struct {
	URL         string
	State       string
	RedirectURI string
	Document    discovery.Document
}

// PendingAuthorization lives between Begin and Complete and is never persisted.
type PendingAuthorization struct {
	State        string
	CodeVerifier string
	RedirectURI  string
	Nonce        string
	Document     discovery.Document
	StartedAt    time.Time
}

type Resolver interface {
	Discover(ctx context.Context, issuerURL string) (discovery.Document, error)
}

type CodeExchanger interface {
	OAuth2Config(doc discovery.Document) *oauth2.Config
	ExchangeCode(ctx context.Context, doc discovery.Document, code, verifier, nonce string) (credentials.Tokens, error)
}

// StateWriter commits a successor credential state. *session.Coordinator satisfies it.
type StateWriter interface {
	Update(ctx context.Context, fn func(prev credentials.State) (credentials.State, error)) (credentials.State, error)
}

type Config struct {
	Issuer       string
	ClientID     string
	RedirectURI  string
	Scopes       []string
	ResponseMode oauthmodel.ResponseModeType
}

// Coordinator runs one authorization at a time. Starting a new one discards the old, whose
// callback is then rejected by state mismatch.
type Coordinator struct {
	cfg       Config
	resolver  Resolver
	exchanger CodeExchanger
	writer    StateWriter
	logger    zerolog.Logger

	mu      sync.Mutex
	pending *PendingAuthorization
	// completing counts Complete calls past the state check that have not returned yet.
	completing int
}

type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

func NewCoordinator(cfg Config, resolver Resolver, exchanger CodeExchanger, writer StateWriter, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		resolver:  resolver,
		exchanger: exchanger,
		writer:    writer,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil || c.completing > 0 {
		return PhaseAuthorizing
	}
	return PhaseIdle
}

// Pending returns a copy of the outstanding authorization, if any.
func (c *Coordinator) Pending() (PendingAuthorization, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingAuthorization{}, false
	}
	return *c.pending, true
}

// Abandon drops the outstanding authorization.
func (c *Coordinator) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}

// Begin prepares an authorization request. identityHint, when set, is sent as identity_provider.
func (c *Coordinator) Begin(ctx context.Context, identityHint string) (Descriptor, error) {
	c.Abandon()

	doc, err := c.resolver.Discover(ctx, c.cfg.Issuer)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Descriptor{}, ctxErr
		}
		return Descriptor{}, internalerrors.WithCause(ErrConfiguration, err)
	}

	verifier := oauth2.GenerateVerifier()
	params := oauthmodel.AuthorizationParameters{
		ClientID:            c.cfg.ClientID,
		ResponseType:        oauthmodel.CodeResponseType,
		RedirectURI:         c.cfg.RedirectURI,
		ResponseMode:        c.cfg.ResponseMode,
		Scope:               strings.Join(c.cfg.Scopes, " "),
		State:               uuid.NewString(),
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod: oauthmodel.CodeMethodTypeS256,
		IdentityProvider:    identityHint,
		Nonce:               uuid.NewString(),
	}
	if err := params.Validate(); err != nil {
		return Descriptor{}, internalerrors.WithCause(ErrConfiguration, err)
	}
	authURL := c.exchanger.OAuth2Config(doc).AuthCodeURL(params.State, params.AuthCodeOptions()...)

	c.mu.Lock()
	c.pending = &PendingAuthorization{
		State:        params.State,
		CodeVerifier: verifier,
		RedirectURI:  params.RedirectURI,
		Nonce:        params.Nonce,
		Document:     doc,
		StartedAt:    NowTimeFunc(),
	}
	c.mu.Unlock()

	c.logger.Debug().Str("issuer", doc.Issuer).Str("idp_hint", identityHint).Msg("authorization started")
	return Descriptor{URL: authURL, State: params.State, RedirectURI: params.RedirectURI, Document: doc}, nil
}

// Complete finishes the outstanding authorization with the redirect parameters.
//
// A state that does not match the pending one returns ErrStateMismatch and leaves both the
// pending authorization and the credential state untouched. A denial or cancellation is
// reported through Result. Exchange failures return ErrTokenExchange. On success the new
// state is committed through the StateWriter and returned. Phase stays PhaseAuthorizing
// until the outcome is known.
func (c *Coordinator) Complete(ctx context.Context, params CallbackParameters) (Result, error) {
	c.mu.Lock()
	pending := c.pending
	if pending == nil {
		c.mu.Unlock()
		return Result{}, ErrNoPendingAuthorization
	}
	if params.Cancelled {
		c.pending = nil
		c.mu.Unlock()
		c.logger.Info().Msg("authorization cancelled by user")
		return Result{Outcome: OutcomeCancelled}, nil
	}
	if subtle.ConstantTimeCompare([]byte(params.State), []byte(pending.State)) != 1 {
		c.mu.Unlock()
		c.logger.Warn().Msg("authorization callback state mismatch")
		return Result{}, ErrStateMismatch
	}
	c.pending = nil
	c.completing++
	c.mu.Unlock()
	defer c.completed()

	if params.Error != "" {
		c.logger.Info().Str("error", params.Error).Msg("authorization denied")
		return Result{Outcome: OutcomeDenied, Error: params.Error, ErrorDescription: params.ErrorDescription}, nil
	}
	if params.Code == "" {
		return Result{}, fmt.Errorf("%w: callback carried neither code nor error", ErrTokenExchange)
	}

	tokens, err := c.exchanger.ExchangeCode(ctx, pending.Document, params.Code, pending.CodeVerifier, pending.Nonce)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.restore(pending)
			return Result{}, ctxErr
		}
		c.logger.Warn().Err(err).Msg("authorization code exchange failed")
		return Result{}, internalerrors.WithCause(ErrTokenExchange, err)
	}

	// The code is spent; commit even if the caller has gone away.
	state, err := c.writer.Update(context.WithoutCancel(ctx), func(prev credentials.State) (credentials.State, error) {
		return prev.Replace(tokens), nil
	})
	if err != nil {
		return Result{}, err
	}
	c.logger.Info().Int64("seq", state.Sequence).Dur("elapsed", NowTimeFunc().Sub(pending.StartedAt)).Msg("authorization complete")
	return Result{Outcome: OutcomeAuthorized, State: state}, nil
}

func (c *Coordinator) completed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completing--
}

// restore puts back a pending authorization whose exchange was cancelled, unless a new one
// has been started since.
func (c *Coordinator) restore(pending *PendingAuthorization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		c.pending = pending
	}
}
