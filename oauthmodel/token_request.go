package oauthmodel

import "net/url"

// TokenRequest holds the form body of a token endpoint request from a public client.
type TokenRequest struct {
	GrantType GrantType

	// ClientID is sent in the body because public clients have no secret to authenticate with.
	ClientID string

	// Code is the authorization code received on the redirect.
	// Required: Yes (authorization_code grant only)
	Code string

	// RedirectURI must equal the one sent on the authorization request.
	RedirectURI string

	// CodeVerifier is the PKCE verifier matching the code_challenge.
	// Example: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	CodeVerifier string

	// RefreshToken is used to obtain new tokens without user interaction.
	// Required: Yes (refresh_token grant only)
	RefreshToken string
}

// ParseTokenRequest reads a token request form.
func ParseTokenRequest(form url.Values) TokenRequest {
	return TokenRequest{
		GrantType:    GrantType(form.Get(ParamGrantType)),
		ClientID:     form.Get(ParamClientID),
		Code:         form.Get(ParamCode),
		RedirectURI:  form.Get(ParamRedirectURI),
		CodeVerifier: form.Get(ParamCodeVerifier),
		RefreshToken: form.Get(ParamRefreshToken),
	}
}

// Validate checks the fields required by the grant type.
func (r TokenRequest) Validate() error {
	if r.ClientID == "" {
		return ErrMissingClientID
	}
	switch r.GrantType {
	case AuthorizationCodeGrant:
		if r.Code == "" {
			return missingParameter(ParamCode)
		}
		if r.RedirectURI == "" {
			return ErrInvalidRedirectUri
		}
		if len(r.CodeVerifier) < 43 || len(r.CodeVerifier) > 128 {
			return ErrInvalidCodeVerifier
		}
	case RefreshTokenGrant:
		if r.RefreshToken == "" {
			return missingParameter(ParamRefreshToken)
		}
	default:
		return ErrUnsupportedGrantType
	}
	return nil
}
