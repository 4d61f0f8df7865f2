package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Config is the process-wide configuration. It is read once from the environment by New
// and never changes afterwards.
type Config interface {
	EnvConfig
	OIDCConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

var (
	ErrMissingIssuer      = errors.New("ISSUER_URL is required")
	ErrMissingClientID    = errors.New("CLIENT_ID is required")
	ErrInvalidRedirectURI = errors.New("invalid REDIRECT_URI")
	ErrInvalidBackend     = errors.New("invalid STORAGE_BACKEND")
)

type mainConfig struct {
	EnvVars
	OIDC
	Storage
}

// New snapshots the environment into an immutable Config and validates it.
func New() (Config, error) {
	c := mainConfig{
		EnvVars: loadEnvVars(),
		OIDC:    loadOIDC(),
		Storage: loadStorage(),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c mainConfig) validate() error {
	issuer, err := url.Parse(c.issuerURL)
	if c.issuerURL == "" || err != nil || !issuer.IsAbs() {
		return ErrMissingIssuer
	}
	if strings.TrimSpace(c.clientID) == "" {
		return ErrMissingClientID
	}
	redirect, err := url.Parse(c.redirectURI)
	if err != nil || redirect.Scheme == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRedirectURI, c.redirectURI)
	}
	switch c.backend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.backend)
	}
	return nil
}
