// Package fetcher retrieves retailer pages with header rotation, per-host
// rate limiting, retry with backoff and anti-bot block detection. It never
// looks at page semantics; adapters do that.
package fetcher

import (
	"context"
	"net/http"
)

// Fetcher retrieves a URL and returns the raw response.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts ...Option) (*Response, error)
}

// Response is a successfully fetched page.
type Response struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Attempts is how many tries it took, starting at 1.
	Attempts int
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

type requestOptions struct {
	minBody int
	headers map[string]string
}

// Option adjusts a single Fetch call.
type Option func(*requestOptions)

// WithMinBody overrides the short-body block threshold. JSON endpoints pass 0
// to disable the check.
func WithMinBody(n int) Option {
	return func(o *requestOptions) {
		o.minBody = n
	}
}

// WithHeader sets an extra request header on top of the rotated profile.
func WithHeader(key, value string) Option {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}
