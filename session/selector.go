package session

import (
	"net/http"

	"github.com/jrsteele09/go-auth-client/credentials"
)

const DefaultDeviceTokenHeader = "X-Device-Token"

// StateSource provides the current credential snapshot.
type StateSource interface {
	Snapshot() credentials.State
}

// DeviceTokenSource supplies the push notification token sent with AccessTokenWithDeviceToken.
type DeviceTokenSource interface {
	DeviceToken() string
}

// DeviceTokenFunc adapts a function to DeviceTokenSource.
type DeviceTokenFunc func() string

func (f DeviceTokenFunc) DeviceToken() string {
	return f()
}

// Attached records what Decorate put on a request: the bearer token ("" when none) and the
// sequence of the snapshot it was taken from.
type Attached struct {
	Token    string
	Sequence int64
}

// Selector decorates requests with the credential their Requirement asks for.
type Selector struct {
	source       StateSource
	device       DeviceTokenSource
	deviceHeader string
}

type SelectorOption func(*Selector)

func WithDeviceTokenSource(src DeviceTokenSource) SelectorOption {
	return func(s *Selector) {
		s.device = src
	}
}

func WithDeviceTokenHeader(header string) SelectorOption {
	return func(s *Selector) {
		s.deviceHeader = header
	}
}

func NewSelector(source StateSource, opts ...SelectorOption) *Selector {
	s := &Selector{source: source, deviceHeader: DefaultDeviceTokenHeader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decorate returns a copy of req carrying the credential r asks for, taken from the current
// snapshot, plus what was attached. A missing token is not an error: the request goes out
// without Authorization and the server rejects it.
func (s *Selector) Decorate(req *http.Request, r Requirement) (*http.Request, Attached) {
	return s.DecorateWith(req, r, s.source.Snapshot())
}

// DecorateWith is Decorate against an explicit state.
func (s *Selector) DecorateWith(req *http.Request, r Requirement, state credentials.State) (*http.Request, Attached) {
	out := req.Clone(req.Context())
	if r == None {
		return out, Attached{Sequence: state.Sequence}
	}
	token := r.Token(state)
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if r == AccessTokenWithDeviceToken && s.device != nil {
		if deviceToken := s.device.DeviceToken(); deviceToken != "" {
			out.Header.Set(s.deviceHeader, deviceToken)
		}
	}
	return out, Attached{Token: token, Sequence: state.Sequence}
}
