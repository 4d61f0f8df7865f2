package config

import (
	"strings"
	"time"
)

const (
	issuerURLEnvVar     = "ISSUER_URL"
	clientIDEnvVar      = "CLIENT_ID"
	redirectURIEnvVar   = "REDIRECT_URI"
	scopesEnvVar        = "SCOPES"
	idpHintEnvVar       = "IDENTITY_PROVIDER"
	verifyIDTokenEnvVar = "VERIFY_ID_TOKEN"
	httpTimeoutEnvVar   = "HTTP_TIMEOUT"
	deviceTokenEnvVar   = "DEVICE_TOKEN"

	DefaultRedirectURI = "http://127.0.0.1:8765/callback"
	DefaultScopes      = "openid profile email offline_access"
)

type OIDCConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetRedirectURI() string
	GetScopes() []string
	GetIdentityProviderHint() string
	GetVerifyIDToken() bool
	GetHTTPTimeout() time.Duration
	GetDeviceToken() string
}

type OIDC struct {
	issuerURL     string
	clientID      string
	redirectURI   string
	scopes        []string
	idpHint       string
	verifyIDToken bool
	httpTimeout   time.Duration
	deviceToken   string
}

var _ OIDCConfig = OIDC{}

func loadOIDC() OIDC {
	return OIDC{
		issuerURL:     GetEnv(issuerURLEnvVar, ""),
		clientID:      GetEnv(clientIDEnvVar, ""),
		redirectURI:   GetEnv(redirectURIEnvVar, DefaultRedirectURI),
		scopes:        strings.Fields(GetEnv(scopesEnvVar, DefaultScopes)),
		idpHint:       GetEnv(idpHintEnvVar, ""),
		verifyIDToken: GetEnvBool(verifyIDTokenEnvVar, false),
		httpTimeout:   GetEnvDuration(httpTimeoutEnvVar, 30*time.Second),
		deviceToken:   GetEnv(deviceTokenEnvVar, ""),
	}
}

func (o OIDC) GetIssuerURL() string {
	return o.issuerURL
}

func (o OIDC) GetClientID() string {
	return o.clientID
}

func (o OIDC) GetRedirectURI() string {
	return o.redirectURI
}

// GetScopes returns a copy so callers cannot alter the configured scope list.
func (o OIDC) GetScopes() []string {
	return append([]string(nil), o.scopes...)
}

func (o OIDC) GetIdentityProviderHint() string {
	return o.idpHint
}

func (o OIDC) GetVerifyIDToken() bool {
	return o.verifyIDToken
}

func (o OIDC) GetHTTPTimeout() time.Duration {
	return o.httpTimeout
}

func (o OIDC) GetDeviceToken() string {
	return o.deviceToken
}
