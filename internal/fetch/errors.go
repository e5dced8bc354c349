package fetch

import (
	"errors"
	"net"
	"net/http"
)

// TransportError wraps a failed fetch attempt. Temporary errors (timeouts,
// connection resets) are retried with backoff; permanent ones (DNS
// NXDOMAIN, malformed URLs) fail the queue entry on first occurrence.
type TransportError struct {
	URL       string
	Err       error
	Temporary bool
}

func (e *TransportError) Error() string {
	return "fetch " + e.URL + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// isTemporary classifies a transport-level error. DNS name-not-found is the
// one network failure treated as permanent; everything else on the wire
// (timeout, refused, reset) is worth retrying.
func isTemporary(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// url.Error with a non-network cause (bad scheme, parse failure).
	return false
}

// Retriable reports whether a failed fetch should be retried, combining the
// transport taxonomy with HTTP status classification.
func Retriable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Temporary
	}

	return false
}

// RetriableStatus reports whether an HTTP status represents a transient
// server-side condition: 429 and all 5xx. Other 4xx statuses are terminal.
func RetriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// SuccessStatus reports whether a status is in the 2xx range.
func SuccessStatus(code int) bool {
	return code >= 200 && code < 300
}
