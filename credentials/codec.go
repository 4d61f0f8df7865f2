package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/utils"
)

var ErrCorrupt = errors.New("corrupt credential state")

type wireState struct {
	AccessToken       *string `json:"accessToken"`
	IDToken           *string `json:"idToken"`
	RefreshToken      *string `json:"refreshToken"`
	AccessTokenExpiry *string `json:"accessTokenExpiry"`
	Scope             string  `json:"scope"`
	Seq               int64   `json:"seq"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return utils.Ptr(s)
}

// Marshal encodes s as the single JSON document that is persisted.
func Marshal(s State) (string, error) {
	w := wireState{
		AccessToken:  optional(s.AccessToken),
		IDToken:      optional(s.IDToken),
		RefreshToken: optional(s.RefreshToken),
		Scope:        s.Scope,
		Seq:          s.Sequence,
	}
	if !s.AccessTokenExpiry.IsZero() {
		w.AccessTokenExpiry = utils.Ptr(s.AccessTokenExpiry.UTC().Format(time.RFC3339Nano))
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("marshal credential state: %w", err)
	}
	return string(data), nil
}

// Unmarshal decodes a document produced by Marshal.
func Unmarshal(data string) (State, error) {
	var w wireState
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if w.Seq < 0 {
		return State{}, fmt.Errorf("%w: negative sequence %d", ErrCorrupt, w.Seq)
	}
	s := State{
		AccessToken:  utils.Value(w.AccessToken),
		IDToken:      utils.Value(w.IDToken),
		RefreshToken: utils.Value(w.RefreshToken),
		Scope:        w.Scope,
		Sequence:     w.Seq,
	}
	if w.AccessTokenExpiry != nil {
		expiry, err := time.Parse(time.RFC3339Nano, *w.AccessTokenExpiry)
		if err != nil {
			return State{}, fmt.Errorf("%w: accessTokenExpiry: %w", ErrCorrupt, err)
		}
		s.AccessTokenExpiry = expiry
	}
	return s, nil
}
