// Package browser renders JavaScript-heavy retailer pages in a headless,
// stealth-patched Chromium. Each render is a fixed sequence: open page, set
// user agent, inject cookies and localStorage, navigate, wait for content,
// scroll, read HTML, classify.
package browser

import (
	"context"
	"time"

	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
)

// Outcome classifies a rendered page.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeBlocked Outcome = "blocked"
	OutcomeEmpty   Outcome = "empty"
)

// Cookie is injected before navigation.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// RenderRequest describes one page render.
type RenderRequest struct {
	URL string
	// WaitSelector is the CSS selector that signals results have loaded.
	// Empty means wait for the load event only.
	WaitSelector string
	// WaitTimeout bounds the selector wait. Default: 10s.
	WaitTimeout time.Duration
	// Scrolls is how many viewport-height scrolls to perform for lazy lists.
	Scrolls int
	// ScrollPause is the delay between scrolls. Default: 750ms.
	ScrollPause  time.Duration
	Cookies      []Cookie
	LocalStorage map[string]string
	// UserAgent overrides the browser user agent. Empty picks a random one.
	UserAgent string
}

// RenderResult is the outcome of a render.
type RenderResult struct {
	FinalURL string
	HTML     string
	Outcome  Outcome
	// BlockReason is set when Outcome is OutcomeBlocked.
	BlockReason string
}

// Renderer renders a page in a real browser.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
	Close() error
}

func (r RenderRequest) withDefaults() RenderRequest {
	if r.WaitTimeout <= 0 {
		r.WaitTimeout = 10 * time.Second
	}
	if r.ScrollPause <= 0 {
		r.ScrollPause = 750 * time.Millisecond
	}
	if r.Scrolls < 0 {
		r.Scrolls = 0
	}
	if r.UserAgent == "" {
		r.UserAgent = fetcher.RandomUserAgent()
	}
	return r
}

// classify maps rendered HTML to an Outcome. found reports whether the wait
// selector matched.
func classify(html string, found bool) (Outcome, string) {
	if reason := fetcher.DetectBlockHTML(html); reason != "" {
		return OutcomeBlocked, reason
	}
	if !found {
		return OutcomeEmpty, ""
	}
	return OutcomeOK, ""
}
