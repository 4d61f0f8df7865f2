package oauthmodel

// ResponseType represents the OAuth 2.0 response type requested from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType requests an authorization code that is later exchanged at the token endpoint.
	// It is the only response type a public client with PKCE uses.
	CodeResponseType ResponseType = "code"
)

// ResponseModeType denotes how the authorization response parameters are returned to the redirect URI.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the query string of the redirect URI.
	// Example: com.example.app:/callback?code=ABC123&state=xyz
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment.
	FragmentResponseMode ResponseModeType = "fragment"

	// FormPostResponseMode returns parameters in a POSTed form body.
	// Used by loopback receivers that do not want codes in browser history.
	FormPostResponseMode ResponseModeType = "form_post"
)

// CodeMethodType represents the PKCE challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256: code_challenge = BASE64URL(SHA256(code_verifier)).
	// This client always sends S256.
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypeNone (labeled "plain") sends the verifier as the challenge.
	// Accepted by the test provider only, never sent by the client.
	CodeMethodTypeNone CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, redirect_uri, code_verifier
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Token request includes: refresh_token, client_id
	// Returns: new access_token and, depending on the provider, a rotated refresh_token and id_token
	RefreshTokenGrant GrantType = "refresh_token"
)

// Request and response parameter names.
const (
	ParamResponseType        = "response_type"
	ParamResponseMode        = "response_mode"
	ParamClientID            = "client_id"
	ParamRedirectURI         = "redirect_uri"
	ParamScope               = "scope"
	ParamState               = "state"
	ParamNonce               = "nonce"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamIdentityProvider    = "identity_provider"
	ParamLoginHint           = "login_hint"
	ParamGrantType           = "grant_type"
	ParamCode                = "code"
	ParamCodeVerifier        = "code_verifier"
	ParamRefreshToken        = "refresh_token"
	ParamError               = "error"
	ParamErrorDescription    = "error_description"
)

// Error codes from RFC 6749 §4.1.2.1 and §5.2.
const (
	ErrorAccessDenied         = "access_denied"
	ErrorInvalidRequest       = "invalid_request"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
)
