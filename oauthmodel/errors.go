package oauthmodel

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrInvalidCodeChallengeMethod = errors.New("invalid code challenge method")
	ErrInvalidCodeVerifier        = errors.New("invalid code verifier")
	ErrInvalidRedirectUri         = errors.New("invalid or no redirect uri")
	ErrInvalidResponseMode        = errors.New("invalid response mode")
	ErrInvalidResponseType        = errors.New("unsupported response type")
	ErrInvalidState               = errors.New("invalid state")
	ErrInvalidScope               = errors.New("invalid scope")
	ErrMissingClientID            = errors.New("missing client id")
	ErrMissingParameter           = errors.New("missing parameter")
	ErrUnsupportedGrantType       = errors.New("unsupported grant type")
)

func missingParameter(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingParameter, name)
}
