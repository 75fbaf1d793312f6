// Package httpclient is the shared HTTP client for every outbound call the
// service makes. The search provider, the page fetcher, and the model runner
// all build on it so timeout, redirect, and cookie behavior stay uniform.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const defaultTimeout = 30 * time.Second

// Config controls the client. A negative MaxRedirects disables redirect
// following entirely; zero follows none before failing.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// Transport overrides the default transport, e.g. a fingerprint.Transport.
	Transport http.RoundTripper
}

// Client wraps http.Client with the service's redirect and cookie policy.
type Client struct {
	*http.Client
}

// New builds a client from cfg. A zero Timeout falls back to defaultTimeout.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c}, nil
}

func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	if max < 0 {
		return func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("httpclient: stopped after %d redirects", max)
		}
		return nil
	}
}

// Do executes req under ctx. The context governs cancellation independently
// of the client timeout; req is cloned so the caller's request is untouched.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}
