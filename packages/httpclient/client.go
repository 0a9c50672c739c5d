package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 100
	// DefaultIdleConnTimeout is how long idle connections stay in the pool.
	DefaultIdleConnTimeout = 90 * time.Second
)

// Client issues the HTTP requests of one test. It carries a cookie jar,
// so it must not be shared between tests.
type Client struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	timeout        time.Duration
	followRedirect bool
	skipTLSVerify  bool
	defaultHeaders map[string]string
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) { c.followRedirect = follow }
}

func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(c *Client) { c.skipTLSVerify = skip }
}

// WithDefaultHeaders sets headers sent with every request unless the
// request already carries them.
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) { c.defaultHeaders = headers }
}

// WithRateLimit caps outgoing requests per second. Zero or negative
// means unlimited.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		followRedirect: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		MaxIdleConns:    DefaultMaxIdleConns,
		IdleConnTimeout: DefaultIdleConnTimeout,
	}
	if c.skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	jar, _ := cookiejar.New(nil)

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !c.followRedirect {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c
}

// Do issues the request, waits for the rate limiter first, and reads the
// full response body.
func (c *Client) Do(req *http.Request) (*Response, error) {
	for k, v := range c.defaultHeaders {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if c.limiter != nil {
		ctx := req.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    headers,
		Body:       body,
	}, nil
}

// CloseIdleConnections releases pooled connections when the test's
// session closes.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
