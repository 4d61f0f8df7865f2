package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HTTPClient is the transport requests are sent through. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recoverer returns the state to replay a 401 with. *Coordinator satisfies it.
type Recoverer interface {
	Recover(ctx context.Context, r Requirement, used Attached) (credentials.State, error)
}

// Client sends API requests with the credential their Requirement asks for and replays a
// request at most once after a 401.
type Client struct {
	http      HTTPClient
	selector  *Selector
	recoverer Recoverer
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

type ClientOption func(*Client)

func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(hc HTTPClient, selector *Selector, recoverer Recoverer, opts ...ClientOption) *Client {
	c := &Client{
		http:      hc,
		selector:  selector,
		recoverer: recoverer,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req decorated for r. On a 401 for an AccessToken or IDToken request the response
// is discarded, credentials are recovered and the request is sent exactly once more; that
// second response is returned whatever its status. When recovery fails the error (usually
// wrapping ErrReauthenticationRequired) is returned instead of a response.
//
// req is not modified, but a body without GetBody is read into memory so it can be replayed.
func (c *Client) Do(req *http.Request, r Requirement) (*http.Response, error) {
	base, err := replayable(req)
	if err != nil {
		return nil, err
	}

	first, used := c.selector.Decorate(base, r)
	resp, err := c.http.Do(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !r.Refreshable() {
		return resp, err
	}
	discard(resp)

	state, err := c.recoverer.Recover(req.Context(), r, used)
	if err != nil {
		return nil, err
	}

	retry, err := rewind(base)
	if err != nil {
		return nil, err
	}
	retry, _ = c.selector.DecorateWith(retry, r, state)
	c.metrics.Retry()
	c.logger.Debug().Str("method", req.Method).Str("path", req.URL.Path).Int64("seq", state.Sequence).Msg("replaying request after 401")
	return c.http.Do(retry)
}

// replayable returns a shallow copy of req whose body can be produced again through GetBody.
func replayable(req *http.Request) (*http.Request, error) {
	base := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return base, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	base.Body = io.NopCloser(bytes.NewReader(data))
	base.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	base.ContentLength = int64(len(data))
	return base, nil
}

func rewind(base *http.Request) (*http.Request, error) {
	retry := base.Clone(base.Context())
	if base.GetBody == nil {
		return retry, nil
	}
	body, err := base.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
