package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// UserAgent is sent with every upstream request.
func UserAgent() string {
	return "projeto-goodwe/" + strings.TrimSpace(version)
}

type headerTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper. The request is cloned so headers of
// a request that gets retried are never mutated twice.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	return t.transport.RoundTrip(req)
}

// HTTPClient returns an http client with our user-agent set and the given
// request timeout.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &headerTransport{
			transport: http.DefaultTransport,
			userAgent: UserAgent(),
		},
		Timeout: timeout,
	}
}
