package token

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

var (
	// ErrProviderRejected means the token endpoint answered with an OAuth error.
	ErrProviderRejected = errors.New("provider rejected token request")
	// ErrTransport means the token endpoint could not be reached or answered unexpectedly.
	ErrTransport = errors.New("token endpoint unreachable")
	// ErrMapping means the token response body could not be mapped to credentials.
	ErrMapping = errors.New("malformed token response")
	// ErrIDTokenInvalid means the ID token failed signature, audience, issuer or nonce checks.
	ErrIDTokenInvalid = errors.New("invalid id token")
	ErrNoRefreshToken = errors.New("no refresh token")
)

// ProviderError carries the OAuth error returned by the token endpoint.
type ProviderError struct {
	Code        string
	Description string
	Status      int
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s (%s, status %d)", ErrProviderRejected, e.Code, e.Description, e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", ErrProviderRejected, e.Code, e.Status)
}

func (e *ProviderError) Unwrap() error {
	return ErrProviderRejected
}

// classify converts an error from x/oauth2 into this package's taxonomy. Cancellation is
// returned as the context error because x/oauth2 flattens transport errors with %v.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		pe := &ProviderError{Code: re.ErrorCode, Description: re.ErrorDescription}
		if re.Response != nil {
			pe.Status = re.Response.StatusCode
		}
		if pe.Code == "" {
			// Non-2xx without an OAuth error body, e.g. a gateway error page.
			if pe.Status >= 500 || pe.Status == 0 {
				return fmt.Errorf("%w: status %d", ErrTransport, pe.Status)
			}
			pe.Code = "unknown_error"
		}
		return pe
	}

	msg := err.Error()
	if strings.Contains(msg, "cannot parse json") || strings.Contains(msg, "missing access_token") {
		return fmt.Errorf("%w: %s", ErrMapping, msg)
	}
	return fmt.Errorf("%w: %s", ErrTransport, msg)
}
