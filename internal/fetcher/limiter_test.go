package fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(1, 2)

	for i := 0; i < 10; i++ {
		a.OnSuccess()
	}
	assert.InDelta(t, 2.0, float64(a.Limit()), 1e-9)

	for i := 0; i < 10; i++ {
		a.OnBlocked("www.amazon.ca")
	}
	assert.InDelta(t, 0.25, float64(a.Limit()), 1e-9)
}

func TestAdaptiveLimiter_Wait(t *testing.T) {
	a := NewAdaptiveLimiter(rate.Inf, 1)
	require.NoError(t, a.Wait(context.Background()))
}

func TestHostLimiters_SharedPerHost(t *testing.T) {
	h := newHostLimiters(1, 2)

	host1, a := h.forURL("https://www.walmart.ca/search?q=pampers")
	host2, b := h.forURL("https://www.walmart.ca/search?q=huggies")
	host3, c := h.forURL("https://www.costco.ca/s?keyword=diapers")

	assert.Equal(t, "www.walmart.ca", host1)
	assert.Equal(t, host1, host2)
	assert.Same(t, a, b)
	assert.Equal(t, "www.costco.ca", host3)
	assert.NotSame(t, a, c)
}
