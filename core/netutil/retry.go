// Package netutil holds the outbound HTTP plumbing shared by the Telegram transport and the live responder.
package netutil

import (
	"errors"
	"net"
	"net/http"
	"net/url"
)

// ShouldRetry reports whether a network error is worth retrying:
// dial failures and timeouts produced by net/http.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errRetryableStatus) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}
	return false
}

var errRetryableStatus = errors.New("retryable status")

// RetryableStatus reports whether an HTTP status signals a transient upstream condition.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
