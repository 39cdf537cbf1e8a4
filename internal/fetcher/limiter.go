package fetcher

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On a block or 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(min(a.currentRate*1.2, a.initialRate*2))
}

// OnBlocked halves the rate, down to initial/4.
func (a *AdaptiveLimiter) OnBlocked(host string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(max(a.currentRate*0.5, a.initialRate/4))
	zap.L().Warn("fetch: reducing request rate",
		zap.String("host", host),
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

func (a *AdaptiveLimiter) setLocked(r rate.Limit) {
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// hostLimiters lazily creates one AdaptiveLimiter per host so concurrent
// adapters hitting the same retailer share a budget.
type hostLimiters struct {
	mu     sync.Mutex
	rps    rate.Limit
	burst  int
	byHost map[string]*AdaptiveLimiter
}

func newHostLimiters(rps float64, burst int) *hostLimiters {
	return &hostLimiters{
		rps:    rate.Limit(rps),
		burst:  burst,
		byHost: make(map[string]*AdaptiveLimiter),
	}
}

func (h *hostLimiters) forURL(rawURL string) (string, *AdaptiveLimiter) {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.byHost[host]
	if !ok {
		lim = NewAdaptiveLimiter(h.rps, h.burst)
		h.byHost[host] = lim
	}
	return host, lim
}
