package netutil

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/lestrrat-go/backoff/v2"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 10 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryBackoff      = 2 * time.Second
)

// ClientOptions tunes NewHTTPClient. Zero values select defaults.
type ClientOptions struct {
	Timeout time.Duration
	// Retries is the number of extra attempts on transient transport errors.
	// Zero disables retrying entirely.
	Retries int
	Backoff time.Duration
}

// NewHTTPClient returns an HTTP client with bounded dial/TLS/header timeouts
// and optional retry of transient transport failures.
func NewHTTPClient(opts ClientOptions) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: defaultResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	var rt http.RoundTripper = transport
	if opts.Retries > 0 {
		rt = newRetryTransport(transport, opts.Retries, opts.Backoff)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	policy     backoff.Policy
}

// newRetryTransport retries transient failures with exponential delays
// starting at interval and capped at four times that.
func newRetryTransport(base http.RoundTripper, maxRetries int, interval time.Duration) *retryTransport {
	if interval <= 0 {
		interval = defaultRetryBackoff
	}
	return &retryTransport{
		base:       base,
		maxRetries: maxRetries,
		policy: backoff.Exponential(
			backoff.WithMinInterval(interval),
			backoff.WithMaxInterval(4*interval),
			backoff.WithMultiplier(2),
			backoff.WithMaxRetries(maxRetries+1),
		),
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	// the controller goroutine lives until ctx is done
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	b := t.policy.Start(ctx)

	attempts := t.maxRetries + 1
	var lastErr error
	for attempt := 1; backoff.Continue(b); attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil {
				// body already consumed and cannot be replayed
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !ShouldRetry(err) || attempt >= attempts {
			return nil, lastErr
		}
	}

	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	return nil, lastErr
}
