package policy

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// robotsTxtPath is the well-known path for robots.txt files.
const robotsTxtPath = "/robots.txt"

// maxRobotsBodyBytes limits the size of robots.txt responses we will read.
const maxRobotsBodyBytes = 512 * 1024 // 512 KB

// HTTPRobotsFetcher fetches robots.txt over HTTP.
type HTTPRobotsFetcher struct {
	client    *http.Client
	userAgent string

	// Scheme overrides the URL scheme, defaulting to https. Plain-http
	// test servers set this to http.
	Scheme string
}

// NewHTTPRobotsFetcher creates a robots fetcher using the given client.
func NewHTTPRobotsFetcher(client *http.Client, userAgent string) *HTTPRobotsFetcher {
	return &HTTPRobotsFetcher{client: client, userAgent: userAgent}
}

// FetchRobots performs the HTTP GET for a host's robots.txt. The body is
// size-limited; oversized files are truncated rather than rejected.
func (f *HTTPRobotsFetcher) FetchRobots(ctx context.Context, host string) ([]byte, int, error) {
	scheme := f.Scheme
	if scheme == "" {
		scheme = "https"
	}

	robotsURL := scheme + "://" + host + robotsTxtPath

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if reqErr != nil {
		return nil, 0, fmt.Errorf("robots: create request: %w", reqErr)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, doErr := f.client.Do(req)
	if doErr != nil {
		return nil, 0, fmt.Errorf("robots: fetch: %w", doErr)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxRobotsBodyBytes)

	body, readErr := io.ReadAll(limited)
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("robots: read body: %w", readErr)
	}

	return body, resp.StatusCode, nil
}
