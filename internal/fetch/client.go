// Package fetch provides the HTTP transport the scheduler dispatches through,
// plus the error taxonomy that decides whether a failed fetch is retried.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBodyBytes limits the size of fetched page responses.
const maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB

// DefaultRequestTimeout bounds a single fetch round trip.
const DefaultRequestTimeout = 30 * time.Second

// Response is a completed HTTP fetch.
type Response struct {
	StatusCode    int
	Headers       http.Header
	Body          []byte
	ContentType   string
	ContentLength int64
	LastModified  *time.Time
}

// Fetcher retrieves a URL. Implementations must honor context cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// HTTPFetcher is the default net/http-backed transport.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a fetcher with the given timeout and user agent.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch performs the HTTP GET for a crawl target. Non-2xx statuses are not
// errors here; classification is the caller's concern. The body is read
// through a size limit so a hostile server cannot exhaust memory.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if reqErr != nil {
		return nil, &TransportError{URL: url, Err: reqErr, Temporary: false}
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, doErr := f.client.Do(req)
	if doErr != nil {
		return nil, &TransportError{URL: url, Err: doErr, Temporary: isTemporary(doErr)}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)

	body, readErr := io.ReadAll(limited)
	if readErr != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("read body: %w", readErr), Temporary: true}
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          body,
		ContentType:   contentType(resp.Header),
		ContentLength: int64(len(body)),
		LastModified:  lastModified(resp.Header),
	}, nil
}

// contentType returns the media type without parameters.
func contentType(h http.Header) string {
	ct := h.Get("Content-Type")
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			return ct[:i]
		}
	}
	return ct
}

// lastModified parses the Last-Modified header if present and well-formed.
func lastModified(h http.Header) *time.Time {
	raw := h.Get("Last-Modified")
	if raw == "" {
		return nil
	}

	t, err := http.ParseTime(raw)
	if err != nil {
		return nil
	}

	return &t
}
