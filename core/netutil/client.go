package netutil

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

// ClientOptions tunes BuildHTTPClient. Zero fields keep the defaults.
type ClientOptions struct {
	// Timeout bounds a whole request including retries.
	Timeout time.Duration
	// ResponseHeaderTimeout bounds the wait for response headers; model endpoints need more than Telegram.
	ResponseHeaderTimeout time.Duration
	Retries               int
	Backoff               time.Duration
	// RetryStatuses also retries 429 and 502-504 responses when the body can be replayed.
	RetryStatuses bool
}

// BuildHTTPClient returns an HTTP client with conservative dial timeouts and linear-backoff retries
// for transient network failures.
func BuildHTTPClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultClientTimeout
	}
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = 5 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = defaultRetryAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultRetryBackoff
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &RetryTransport{
			Base:          transport,
			MaxRetries:    opts.Retries,
			Backoff:       opts.Backoff,
			RetryStatuses: opts.RetryStatuses,
		},
	}
}

// RetryTransport retries requests that failed with a transient error.
type RetryTransport struct {
	Base          http.RoundTripper
	MaxRetries    int
	Backoff       time.Duration
	RetryStatuses bool
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil && req.Body != http.NoBody {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil && t.RetryStatuses && RetryableStatus(resp.StatusCode) && attempt < attempts {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			err = fmt.Errorf("%w: %s", errRetryableStatus, resp.Status)
		} else if err == nil {
			return resp, nil
		}
		lastErr = err
		if !ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := t.Backoff * time.Duration(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}
