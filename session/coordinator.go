package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrReauthenticationRequired is terminal for the current session: only a new interactive
	// login produces usable credentials. Nothing is cleared automatically.
	ErrReauthenticationRequired = errors.New("reauthentication required")
	ErrNoRefreshToken           = errors.New("no refresh token")
	ErrNotRefreshable           = errors.New("requirement is not eligible for refresh")
	ErrSequence                 = errors.New("successor state must advance sequence by one")
)

// Refresher performs the refresh grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (credentials.Tokens, error)
}

// Persister is the storage the coordinator writes through. Load is only used at construction.
type Persister interface {
	Load(ctx context.Context) credentials.State
	Save(ctx context.Context, state credentials.State) error
	Clear(ctx context.Context) error
}

// Coordinator owns the live credential state. Readers take lock-free snapshots; every
// mutation runs under a single context-aware lock and advances the sequence by one.
//
// The refresh grant runs while the lock is held. Refreshes are rare and serializing them
// lets concurrent 401s on the same generation share one network call.
type Coordinator struct {
	lock      *semaphore.Weighted
	current   atomic.Pointer[credentials.State]
	store     Persister
	refresher Refresher
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// exhausted is the sequence of the generation whose refresh failed, or -1. Guarded by lock.
	exhausted int64
}

type Option func(*Coordinator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator restores the persisted state and takes ownership of it.
func NewCoordinator(ctx context.Context, store Persister, refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		lock:      semaphore.NewWeighted(1),
		store:     store,
		refresher: refresher,
		logger:    log.Logger,
		exhausted: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	initial := store.Load(ctx)
	c.current.Store(&initial)
	return c
}

// Snapshot returns the current state without locking. It may be stale by the time it is used.
func (c *Coordinator) Snapshot() credentials.State {
	return *c.current.Load()
}

// Update is the write path for everything except refresh recovery. fn receives the current
// state and must return its successor (see credentials.State.Replace).
func (c *Coordinator) Update(ctx context.Context, fn func(prev credentials.State) (credentials.State, error)) (credentials.State, error) {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return credentials.State{}, err
	}
	defer c.lock.Release(1)

	prev := c.Snapshot()
	next, err := fn(prev)
	if err != nil {
		return prev, err
	}
	if next.Sequence != prev.Sequence+1 {
		return prev, fmt.Errorf("%w: %d after %d", ErrSequence, next.Sequence, prev.Sequence)
	}
	c.commit(ctx, next)
	return next, nil
}

// Reset logs out: tokens are dropped, the sequence advances and storage is cleared.
func (c *Coordinator) Reset(ctx context.Context) (credentials.State, error) {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return credentials.State{}, err
	}
	defer c.lock.Release(1)

	next := c.Snapshot().Cleared()
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear stored credentials")
	}
	c.current.Store(&next)
	c.logger.Info().Int64("seq", next.Sequence).Msg("credentials cleared")
	return next, nil
}

// Recover is called after a request decorated with used was rejected with 401. It returns
// the state the request should be replayed with:
//   - if the state has moved past used.Sequence, or its token differs from used.Token,
//     another caller already refreshed or logged in, and the current state is returned
//     without a network call. Providers may keep the ID token across a refresh, so the
//     sequence is the signal that counts;
//   - otherwise the refresh grant runs once for this generation. A failed generation is
//     never refreshed again and every later caller gets ErrReauthenticationRequired.
//
// Cancellation of ctx, while waiting for the lock or during the refresh call, returns the
// context error and leaves the state and the generation untouched.
func (c *Coordinator) Recover(ctx context.Context, r Requirement, used Attached) (credentials.State, error) {
	if !r.Refreshable() {
		return credentials.State{}, ErrNotRefreshable
	}
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return credentials.State{}, err
	}
	defer c.lock.Release(1)

	prev := c.Snapshot()
	logger := c.logger.With().Int64("seq", prev.Sequence).Stringer("requirement", r).Logger()

	if current := r.Token(prev); prev.Sequence != used.Sequence || current != used.Token {
		if current == "" {
			c.metrics.ReauthenticationRequired()
			return prev, fmt.Errorf("%w: %s no longer available", ErrReauthenticationRequired, r)
		}
		c.metrics.Piggyback()
		logger.Debug().Int64("used_seq", used.Sequence).Msg("credentials already refreshed")
		return prev, nil
	}

	if c.exhausted == prev.Sequence {
		c.metrics.ReauthenticationRequired()
		return prev, fmt.Errorf("%w: refresh already failed for this session", ErrReauthenticationRequired)
	}
	if prev.RefreshToken == "" {
		c.markExhausted(prev.Sequence)
		c.metrics.ReauthenticationRequired()
		return prev, fmt.Errorf("%w: %w", ErrReauthenticationRequired, ErrNoRefreshToken)
	}

	tokens, err := c.refresher.Refresh(ctx, prev.RefreshToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.Refresh(metrics.ResultCancelled)
			return prev, ctxErr
		}
		c.metrics.Refresh(metrics.ResultFailure)
		c.metrics.ReauthenticationRequired()
		c.markExhausted(prev.Sequence)
		logger.Warn().Err(err).Msg("refresh failed")
		return prev, fmt.Errorf("%w: %w", ErrReauthenticationRequired, err)
	}

	next := prev.Refresh(tokens)
	c.metrics.Refresh(metrics.ResultSuccess)
	c.commit(ctx, next)
	logger.Info().Int64("next_seq", next.Sequence).Msg("credentials refreshed")
	return next, nil
}

func (c *Coordinator) markExhausted(seq int64) {
	c.exhausted = seq
	c.metrics.Exhausted()
}

// commit persists best-effort and publishes next. Must hold lock.
func (c *Coordinator) commit(ctx context.Context, next credentials.State) {
	if err := c.store.Save(context.WithoutCancel(ctx), next); err != nil {
		c.logger.Warn().Err(err).Int64("seq", next.Sequence).Msg("failed to persist credentials, keeping in memory")
	}
	c.current.Store(&next)
}
