package httpauth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/metrics"
)

// maxBodySize bounds how much of an upstream response is read.
const maxBodySize = 1 << 20

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs requests against one upstream endpoint with the timeouts
// and retry policy from Params. Transport failures and 5xx responses are
// retried; any other response is returned to the caller as is.
type Client struct {
	params   Params
	http     *http.Client
	metrics  *metrics.AuthMetrics
	provider string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics attaches metrics labelled with the given provider kind.
func WithMetrics(m *metrics.AuthMetrics, provider string) Option {
	return func(c *Client) {
		c.metrics = m
		c.provider = provider
	}
}

// NewClient creates a Client for params.
func NewClient(params Params, opts ...Option) *Client {
	c := &Client{
		params:   params,
		provider: metrics.ProviderHTTP,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: newTransport(params)}
	}
	return c
}

func newTransport(p Params) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: p.ConnectionTimeout}).DialContext
	t.TLSHandshakeTimeout = p.ConnectionTimeout
	if p.ReceiveTimeout > 0 {
		t.ResponseHeaderTimeout = p.SendTimeout + p.ReceiveTimeout
	}
	return t
}

// Params returns the endpoint parameters.
func (c *Client) Params() Params {
	return c.params
}

// attemptTimeout bounds one attempt end to end.
func (c *Client) attemptTimeout() time.Duration {
	return c.params.ConnectionTimeout + c.params.SendTimeout + c.params.ReceiveTimeout
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.params.RetryInitialBackoff),
		backoff.WithMaxInterval(c.params.RetryMaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)
	tries := c.params.MaxTries
	if tries < 1 {
		tries = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(tries-1)), ctx)
}

// Do sends the request built by newReq, retrying per the retry policy.
// newReq is called once per attempt so that request bodies are fresh.
// Exhausted retries return an error wrapping autherr.ErrTransientIO.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	attempt := 0
	var buildErr error
	op := func() (*Response, error) {
		attempt++

		actx := ctx
		if d := c.attemptTimeout(); d > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		req, err := newReq(actx)
		if err != nil {
			buildErr = err
			return nil, backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("upstream returned %s", resp.Status)
		}

		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	notify := func(err error, wait time.Duration) {
		c.metrics.RecordRetry(c.provider)
		logger.DebugCtx(ctx, "Upstream request failed, retrying",
			logger.KeyURI, c.params.URI,
			logger.KeyAttempt, attempt,
			logger.KeyError, err.Error(),
			"wait", wait)
	}

	resp, err := backoff.RetryNotifyWithData(op, c.newBackOff(ctx), notify)
	if err != nil {
		if buildErr != nil {
			return nil, buildErr
		}
		return nil, fmt.Errorf("%w: %s after %d attempt(s): %v", autherr.ErrTransientIO, c.params.URI, attempt, err)
	}
	return resp, nil
}

// Get fetches the endpoint URI with optional extra headers.
func (c *Client) Get(ctx context.Context, header http.Header) (*Response, error) {
	return c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.params.URI, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return req, nil
	})
}
