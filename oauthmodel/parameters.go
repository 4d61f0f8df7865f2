package oauthmodel

import (
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// AuthorizationParameters holds the parameters of an interactive authorization request.
// The client builds one per login attempt; the test provider parses one from the query.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Required: Yes
	ClientID string

	// ResponseType is always "code" for this client.
	ResponseType ResponseType

	// RedirectURI is where the authorization response is delivered.
	// Required: Yes
	// Example: "com.example.app:/oauth2redirect" or "http://127.0.0.1:8765/callback"
	RedirectURI string

	// ResponseMode controls how the authorization response is returned (query/fragment/form_post).
	// Required: No (the provider defaults to "query" for the code flow)
	ResponseMode ResponseModeType

	// Scope is the space separated list of requested permissions.
	// Example: "openid profile email offline_access"
	Scope string

	// State is the anti-CSRF value echoed back on the redirect.
	// Required: Yes, the client rejects any callback whose state does not match.
	State string

	// CodeChallenge is BASE64URL(SHA256(code_verifier)).
	// Required: Yes (public client)
	// Length: 43 characters for S256
	CodeChallenge string

	// CodeChallengeMethod specifies how CodeChallenge was derived.
	CodeChallengeMethod CodeMethodType

	// IdentityProvider suggests which upstream identity provider to use, skipping the selection screen.
	// Required: No
	// Example: "google", "apple"
	IdentityProvider string

	// LoginHint pre-fills the username on the login page.
	// Required: No
	LoginHint string

	// Nonce binds the ID token to this authorization request.
	// Required: Recommended for OIDC
	Nonce string
}

// Validate checks the parameters a public client must send before the request is launched.
func (p *AuthorizationParameters) Validate() error {
	if strings.TrimSpace(p.ClientID) == "" {
		return ErrMissingClientID
	}
	if !responseTypeValid(p.ResponseType) {
		return ErrInvalidResponseType
	}
	if !responseModeValid(p.ResponseMode) {
		return ErrInvalidResponseMode
	}
	if err := ValidateRedirectURI(p.RedirectURI); err != nil {
		return err
	}
	if err := ValidateScope(p.Scope); err != nil {
		return err
	}
	if len(strings.TrimSpace(p.State)) < 8 {
		return ErrInvalidState
	}
	return ValidatePKCE(p.CodeChallenge, p.CodeChallengeMethod)
}

// AuthCodeOptions returns the parameters oauth2.Config.AuthCodeURL does not set on its own.
// client_id, redirect_uri, scope, state and response_type come from the config.
func (p *AuthorizationParameters) AuthCodeOptions() []oauth2.AuthCodeOption {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam(ParamCodeChallenge, p.CodeChallenge),
		oauth2.SetAuthURLParam(ParamCodeChallengeMethod, string(p.CodeChallengeMethod)),
	}
	if p.ResponseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam(ParamResponseMode, string(p.ResponseMode)))
	}
	if p.Nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam(ParamNonce, p.Nonce))
	}
	if p.IdentityProvider != "" {
		opts = append(opts, oauth2.SetAuthURLParam(ParamIdentityProvider, p.IdentityProvider))
	}
	if p.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam(ParamLoginHint, p.LoginHint))
	}
	return opts
}

// ParseAuthorizationParameters reads an authorization request query.
func ParseAuthorizationParameters(q url.Values) AuthorizationParameters {
	return AuthorizationParameters{
		ClientID:            q.Get(ParamClientID),
		ResponseType:        ResponseType(q.Get(ParamResponseType)),
		RedirectURI:         q.Get(ParamRedirectURI),
		ResponseMode:        ResponseModeType(q.Get(ParamResponseMode)),
		Scope:               q.Get(ParamScope),
		State:               q.Get(ParamState),
		CodeChallenge:       q.Get(ParamCodeChallenge),
		CodeChallengeMethod: CodeMethodType(q.Get(ParamCodeChallengeMethod)),
		IdentityProvider:    q.Get(ParamIdentityProvider),
		LoginHint:           q.Get(ParamLoginHint),
		Nonce:               q.Get(ParamNonce),
	}
}

// ValidatePKCE requires both challenge and method, a challenge of 43 to 128 characters
// and a known method.
func ValidatePKCE(codeChallenge string, method CodeMethodType) error {
	if codeChallenge == "" || method == "" {
		return ErrInvalidCodeChallenge
	}
	if len(codeChallenge) < 43 || len(codeChallenge) > 128 {
		return ErrInvalidCodeChallenge
	}
	switch method {
	case CodeMethodTypeS256, CodeMethodTypeNone:
		return nil
	}
	return ErrInvalidCodeChallengeMethod
}

// ValidateCodeVerifier checks a verifier against the challenge recorded at authorization time.
func ValidateCodeVerifier(verifier, challenge string, method CodeMethodType) error {
	if len(verifier) < 43 || len(verifier) > 128 {
		return ErrInvalidCodeVerifier
	}
	expected := verifier
	if method == CodeMethodTypeS256 {
		expected = oauth2.S256ChallengeFromVerifier(verifier)
	}
	if expected != challenge {
		return ErrInvalidCodeVerifier
	}
	return nil
}

// ValidateScope rejects control characters and empty tokens between spaces.
func ValidateScope(scope string) error {
	if strings.ContainsAny(scope, "\n\r\t") {
		return ErrInvalidScope
	}
	if scope == "" {
		return nil
	}
	for _, s := range strings.Split(scope, " ") {
		if s == "" {
			return ErrInvalidScope
		}
	}
	return nil
}

// ValidateRedirectURI accepts absolute URIs without fragments. Custom schemes are allowed
// because native apps receive redirects on them.
func ValidateRedirectURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return ErrInvalidRedirectUri
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Fragment != "" || strings.Contains(uri, "#") {
		return ErrInvalidRedirectUri
	}
	return nil
}

func responseModeValid(responseMode ResponseModeType) bool {
	switch responseMode {
	case "", QueryResponseMode, FormPostResponseMode, FragmentResponseMode:
		return true
	}
	return false
}

func responseTypeValid(responseType ResponseType) bool {
	return responseType == CodeResponseType
}
