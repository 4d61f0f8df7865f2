// Package credentials holds the client's token set and its persisted form.
package credentials

import "time"

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// State is an immutable snapshot of the credential set. An empty string means the token is
// absent and a zero AccessTokenExpiry means the expiry is unknown.
//
// Sequence identifies the generation: two states belong to the same generation iff their
// sequences are equal. Successors are only built through Replace, Refresh and Cleared,
// each of which advances the sequence by exactly one.
type State struct {
	AccessToken       string
	IDToken           string
	RefreshToken      string
	AccessTokenExpiry time.Time
	Scope             string
	Sequence          int64
}

// Tokens is the result of a token endpoint call, already mapped from the wire response.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// Replace returns the successor state after an authorization code exchange. Nothing from s
// survives except the sequence it advances.
func (s State) Replace(t Tokens) State {
	return State{
		AccessToken:       t.AccessToken,
		IDToken:           t.IDToken,
		RefreshToken:      t.RefreshToken,
		AccessTokenExpiry: t.Expiry,
		Scope:             t.Scope,
		Sequence:          s.Sequence + 1,
	}
}

// Refresh returns the successor state after a refresh grant. Providers may omit the refresh
// token, ID token and scope from a refresh response, in which case the previous values are kept.
func (s State) Refresh(t Tokens) State {
	next := s.Replace(t)
	if next.RefreshToken == "" {
		next.RefreshToken = s.RefreshToken
	}
	if next.IDToken == "" {
		next.IDToken = s.IDToken
	}
	if next.Scope == "" {
		next.Scope = s.Scope
	}
	return next
}

// Cleared returns the logged out successor of s.
func (s State) Cleared() State {
	return State{Sequence: s.Sequence + 1}
}

// IsEmpty reports whether s carries no tokens at all.
func (s State) IsEmpty() bool {
	return s.AccessToken == "" && s.IDToken == "" && s.RefreshToken == ""
}

// Expired reports whether the access token expiry is known and has passed.
func (s State) Expired() bool {
	return !s.AccessTokenExpiry.IsZero() && !NowTimeFunc().Before(s.AccessTokenExpiry)
}

func (s State) Equal(o State) bool {
	return s.AccessToken == o.AccessToken &&
		s.IDToken == o.IDToken &&
		s.RefreshToken == o.RefreshToken &&
		s.AccessTokenExpiry.Equal(o.AccessTokenExpiry) &&
		s.Scope == o.Scope &&
		s.Sequence == o.Sequence
}
