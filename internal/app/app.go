// Package app builds the client's components from configuration.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-client/authorization"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/discovery"
	"github.com/jrsteele09/go-auth-client/internal/config"
	internalerrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/jrsteele09/go-auth-client/securestore"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	saltKey     = "encryption_salt"
	saltSize    = 16
	redisPrefix = "go-auth-client:"
)

// App holds one active credential set and everything that reads or writes it.
type App struct {
	Config        config.Config
	Logger        zerolog.Logger
	Registry      *prometheus.Registry
	Metrics       *metrics.Metrics
	Discovery     *discovery.Client
	Exchanger     *token.Exchanger
	Session       *session.Coordinator
	Selector      *session.Selector
	Client        *session.Client
	Authorization *authorization.Coordinator

	closers []func() error
}

type Option func(*options)

type options struct {
	logger     zerolog.Logger
	store      securestore.Store
	httpClient *http.Client
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStore bypasses the configured storage backend.
func WithStore(s securestore.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.GetHTTPTimeout()}
	}

	a := &App{Config: cfg, Logger: o.logger, Registry: prometheus.NewRegistry()}
	a.Metrics = metrics.New(a.Registry)

	kv := o.store
	if kv == nil {
		var err error
		if kv, err = a.openStore(cfg); err != nil {
			return nil, err
		}
	}
	if passphrase := cfg.GetStoragePassphrase(); passphrase != "" {
		encrypted, err := encrypt(ctx, kv, passphrase)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		kv = encrypted
	}

	a.Discovery = discovery.NewClient(
		discovery.WithHTTPClient(o.httpClient),
		discovery.WithLogger(o.logger))
	a.Exchanger = token.NewExchanger(a.Discovery, token.Config{
		Issuer:      cfg.GetIssuerURL(),
		ClientID:    cfg.GetClientID(),
		RedirectURI: cfg.GetRedirectURI(),
		Scopes:      cfg.GetScopes(),
	},
		token.WithHTTPClient(o.httpClient),
		token.WithIDTokenVerification(cfg.GetVerifyIDToken()),
		token.WithLogger(o.logger))

	store := credentials.NewStore(kv, credentials.WithLogger(o.logger))
	a.Session = session.NewCoordinator(ctx, store, a.Exchanger,
		session.WithMetrics(a.Metrics),
		session.WithLogger(o.logger))

	deviceToken := cfg.GetDeviceToken()
	a.Selector = session.NewSelector(a.Session,
		session.WithDeviceTokenSource(session.DeviceTokenFunc(func() string { return deviceToken })))
	a.Client = session.NewClient(o.httpClient, a.Selector, a.Session,
		session.WithClientMetrics(a.Metrics),
		session.WithClientLogger(o.logger))

	a.Authorization = authorization.NewCoordinator(authorization.Config{
		Issuer:      cfg.GetIssuerURL(),
		ClientID:    cfg.GetClientID(),
		RedirectURI: cfg.GetRedirectURI(),
		Scopes:      cfg.GetScopes(),
	}, a.Discovery, a.Exchanger, a.Session, authorization.WithLogger(o.logger))

	o.logger.Debug().
		Str("issuer", cfg.GetIssuerURL()).
		Str("backend", cfg.GetStorageBackend()).
		Int64("seq", a.Session.Snapshot().Sequence).
		Msg("client initialised")
	return a, nil
}

func (a *App) openStore(cfg config.StorageConfig) (securestore.Store, error) {
	switch cfg.GetStorageBackend() {
	case config.BackendFile:
		s, err := securestore.NewFileStore(cfg.GetStorageDir())
		if err != nil {
			return nil, internalerrors.Wrapf(err, "open file store")
		}
		return s, nil
	case config.BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.GetRedisAddr()}})
		a.closers = append(a.closers, client.Close)
		return securestore.NewRedisStore(client, redisPrefix), nil
	case config.BackendMemory:
		return securestore.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.GetStorageBackend())
}

// encrypt wraps kv with a key derived from passphrase. The salt is random per store and kept
// next to the values it protects.
func encrypt(ctx context.Context, kv securestore.Store, passphrase string) (*securestore.Encrypted, error) {
	var salt []byte
	encoded, err := kv.Get(ctx, saltKey)
	switch {
	case err == nil:
		if salt, err = base64.StdEncoding.DecodeString(encoded); err != nil || len(salt) != saltSize {
			return nil, fmt.Errorf("%w: malformed %s", securestore.ErrDecrypt, saltKey)
		}
	case errors.Is(err, securestore.ErrNotFound):
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, internalerrors.Wrapf(err, "generate salt")
		}
		if err := kv.Set(ctx, saltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
			return nil, internalerrors.Wrapf(err, "store salt")
		}
	default:
		return nil, internalerrors.Wrapf(err, "read salt")
	}
	return securestore.NewEncrypted(kv, securestore.DeriveKey(passphrase, salt))
}

// Logout discards the credential set locally. The provider session is left alone.
func (a *App) Logout(ctx context.Context) error {
	state, err := a.Session.Reset(ctx)
	if err != nil {
		return err
	}
	a.Authorization.Abandon()
	a.Logger.Info().Int64("seq", state.Sequence).Msg("logged out")
	return nil
}

// Status returns the current credential state.
func (a *App) Status() credentials.State {
	return a.Session.Snapshot()
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
