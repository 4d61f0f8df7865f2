// Package session attaches credentials to outgoing API requests and recovers from 401
// responses with at most one refresh per credential generation.
package session

import "github.com/jrsteele09/go-auth-client/credentials"

// Requirement declares which credential an outgoing request carries. Every request sent
// through Client states one.
type Requirement int

const (
	// None sends the request as is.
	None Requirement = iota
	// AccessToken sends the access token as a bearer token.
	AccessToken
	// IDToken sends the ID token as a bearer token, for first-contact endpoints such as
	// registration where the access token may not yet represent a provisioned account.
	IDToken
	// AccessTokenWithDeviceToken sends the access token and the device token header.
	// A 401 on such a request is never refreshed and replayed, so device token side
	// effects cannot happen twice.
	AccessTokenWithDeviceToken
)

func (r Requirement) String() string {
	switch r {
	case None:
		return "none"
	case AccessToken:
		return "access_token"
	case IDToken:
		return "id_token"
	case AccessTokenWithDeviceToken:
		return "access_token_with_device_token"
	}
	return "unknown"
}

// Refreshable reports whether a 401 on a request with this requirement may be recovered
// by refreshing and replaying once.
func (r Requirement) Refreshable() bool {
	return r == AccessToken || r == IDToken
}

// Token returns the bearer token r attaches from s, or "" when r attaches none.
func (r Requirement) Token(s credentials.State) string {
	switch r {
	case AccessToken, AccessTokenWithDeviceToken:
		return s.AccessToken
	case IDToken:
		return s.IDToken
	}
	return ""
}

// ParseRequirement is the inverse of String.
func ParseRequirement(s string) (Requirement, bool) {
	for _, r := range []Requirement{None, AccessToken, IDToken, AccessTokenWithDeviceToken} {
		if r.String() == s {
			return r, true
		}
	}
	return None, false
}
