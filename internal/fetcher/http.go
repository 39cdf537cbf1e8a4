package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/resilience"
)

const maxBodyBytes = 8 << 20

// Options configures the HTTP fetcher.
type Options struct {
	// Timeout bounds a single attempt. Default: 15s.
	Timeout time.Duration
	// Retry is the per-URL retry policy.
	Retry resilience.RetryConfig
	// MinBodyBytes is the default short-body block threshold for HTML.
	MinBodyBytes int
	// RequestsPerSecond and Burst configure each per-host limiter.
	RequestsPerSecond float64
	Burst             int
	// Profiles overrides the rotated header profiles.
	Profiles []HeaderProfile
}

// DefaultOptions returns the production fetch settings.
func DefaultOptions() Options {
	return Options{
		Timeout:           15 * time.Second,
		Retry:             resilience.DefaultRetryConfig(),
		MinBodyBytes:      DefaultMinBodyBytes,
		RequestsPerSecond: 1,
		Burst:             2,
	}
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client   *http.Client
	opts     Options
	limiters *hostLimiters
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MinBodyBytes < 0 {
		opts.MinBodyBytes = 0
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = def.RequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = DefaultProfiles()
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = resilience.IsRetryableFetch
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: newHostLimiters(opts.RequestsPerSecond, opts.Burst),
	}
}

// Fetch retrieves rawURL, retrying transient failures with a fresh header
// profile each attempt. A block ends the fetch on the first attempt. Every
// failure is a *resilience.FetchError wrapping the last cause.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	ro := requestOptions{minBody: f.opts.MinBodyBytes}
	for _, o := range opts {
		o(&ro)
	}

	host, lim := f.limiters.forURL(rawURL)

	retry := f.opts.Retry
	retry.OnRetry = resilience.RetryLogger(host, rawURL)

	attempts := 0
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		attempts++
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetch: rate limiter wait")
		}

		resp, err := f.attempt(ctx, rawURL, ro)
		switch {
		case err == nil:
			lim.OnSuccess()
		case resilience.IsBlocked(err):
			lim.OnBlocked(host)
		}
		return resp, err
	})
	if err != nil {
		return nil, &resilience.FetchError{URL: rawURL, Attempts: attempts, Err: err}
	}
	resp.Attempts = attempts

	zap.L().Debug("fetch: ok",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Int("attempts", attempts),
	)
	return resp, nil
}

func (f *HTTPFetcher) attempt(ctx context.Context, rawURL string, ro requestOptions) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	pickProfile(f.opts.Profiles).apply(req.Header)
	for k, v := range ro.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: read body"), resp.StatusCode)
	}

	if reason := DetectBlock(resp.StatusCode, resp.Header, body, blockThreshold(resp.StatusCode, ro.minBody)); reason != "" {
		return nil, &resilience.BlockedError{URL: rawURL, Reason: reason}
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("fetch: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("fetch: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// blockThreshold only applies the short-body check to successful responses;
// error statuses are classified by their code.
func blockThreshold(status, minBody int) int {
	if status < 200 || status >= 300 {
		return 0
	}
	return minBody
}
