package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/polygonid/verifier-node/internal/log"
)

const (
	defaultRetryMax = 3
	contentType     = "application/json"
)

// DefaultHTTPClientWithRetry is shared by the circuit loaders and the issuer status resolvers.
var DefaultHTTPClientWithRetry = NewRetryClient(defaultRetryMax, 0)

// ErrNotFound is returned when the remote answers 404
var ErrNotFound = errors.New("resource not found")

// Client sends JSON requests to issuers and asset hosts. It forwards the chi request id, so a
// verification can be followed across services.
type Client struct {
	base http.Client
}

// NewClient wraps c
func NewClient(c http.Client) *Client {
	return &Client{base: c}
}

// NewRetryClient returns a client that retries failed requests up to retryMax times.
// A zero timeout leaves requests bounded only by their context.
func NewRetryClient(retryMax int, timeout time.Duration) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.Logger = nil
	return NewClient(http.Client{
		Timeout:   timeout,
		Transport: &retryablehttp.RoundTripper{Client: rc},
	})
}

// Post sends body to url and returns the response body
func (c *Client) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, bytes.NewReader(body))
}

// Get returns the body found at url
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, http.NoBody)
}

func (c *Client) do(ctx context.Context, method string, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if id := middleware.GetReqID(ctx); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn(ctx, "closing response body", "err", err, "url", url)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return raw, nil
	case http.StatusNotFound:
		return nil, errors.Wrapf(ErrNotFound, "%s %s", method, url)
	default:
		return nil, errors.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, raw)
	}
}
