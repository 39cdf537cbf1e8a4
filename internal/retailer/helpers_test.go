package retailer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diaperwatch/diaperwatch-cli/internal/browser"
	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

// fakeFetcher answers every Fetch with handler and records requested URLs.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	handler func(url string) ([]byte, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, _ ...fetcher.Option) (*fetcher.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := f.handler(url)
	if err != nil {
		return nil, err
	}
	return &fetcher.Response{URL: url, StatusCode: 200, Body: body, Attempts: 1}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func servePage(body []byte) *fakeFetcher {
	return &fakeFetcher{handler: func(string) ([]byte, error) { return body, nil }}
}

// fakeRenderer returns a canned render result.
type fakeRenderer struct {
	mu       sync.Mutex
	requests []browser.RenderRequest
	result   *browser.RenderResult
	err      error
}

func (r *fakeRenderer) Render(_ context.Context, req browser.RenderRequest) (*browser.RenderResult, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	res := *r.result
	if res.FinalURL == "" {
		res.FinalURL = req.URL
	}
	return &res, nil
}

func (r *fakeRenderer) Close() error { return nil }
