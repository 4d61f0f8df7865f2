package oauthmodel

// TokenResponse is the token endpoint response body defined in RFC 6749 §5.1.
type TokenResponse struct {
	// AccessToken is sent as "Authorization: Bearer <access_token>" on API calls.
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token. Only present when "openid" was requested.
	IdToken *string `json:"id_token,omitempty"`

	// TokenType is "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken may be omitted on refresh responses when the provider does not rotate it.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope may be narrower than the requested scope.
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the token endpoint error body defined in RFC 6749 §5.2.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
