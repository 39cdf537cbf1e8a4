package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewListing_DerivesUnitPrice(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewListing("Pampers", "Baby Dry", "3", RetailerAmazon, 198, 54.974, "https://amazon.ca/dp/1", true, now)

	assert.Equal(t, 54.97, l.Price)
	assert.InDelta(t, 0.2776, l.PricePerUnit, 0.00001)
	assert.Equal(t, now, l.LastFetchedAt)
	require.NoError(t, l.Validate())
}

func TestUnitPrice_Invariant(t *testing.T) {
	cases := []struct {
		price float64
		count int
	}{
		{54.97, 198},
		{39.99, 120},
		{12.49, 24},
		{89.99, 252},
		{0.01, 300},
	}
	for _, c := range cases {
		got := UnitPrice(c.price, c.count)
		assert.InDelta(t, c.price/float64(c.count), got, 0.00005)
		assert.Equal(t, RoundUnitPrice(got), got)
	}
	assert.Equal(t, 0.0, UnitPrice(10, 0))
}

func TestRoundPrice_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 1.01, RoundPrice(1.005000001))
	assert.Equal(t, 2.5, RoundPrice(2.499999))
	assert.Equal(t, 0.1235, RoundUnitPrice(0.12346))
}

func TestValidate(t *testing.T) {
	base := NewListing("Huggies", "Little Snugglers", "1", RetailerCostco, 120, 45.99, "u", true, time.Now())
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*ProductListing)
		msg    string
	}{
		{"zero count", func(l *ProductListing) { l.Count = 0 }, "count must be positive"},
		{"negative price", func(l *ProductListing) { l.Price = -1 }, "price must be positive"},
		{"no brand", func(l *ProductListing) { l.Brand = " " }, "brand is required"},
		{"no size", func(l *ProductListing) { l.Size = "" }, "size is required"},
		{"no type", func(l *ProductListing) { l.Type = "" }, "type is required"},
		{"bad retailer", func(l *ProductListing) { l.Retailer = "ebay" }, "unknown retailer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base
			tt.mutate(&l)
			err := l.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestListingKey(t *testing.T) {
	a := NewListing("Pampers", "Swaddlers", "2", RetailerWalmart, 84, 30, "a", true, time.Now())
	b := NewListing("Pampers", "Swaddlers", "2", RetailerWalmart, 112, 40, "b", false, time.Now())
	c := NewListing("Pampers", "Swaddlers", "2", RetailerAmazon, 84, 30, "a", true, time.Now())

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "Pampers|Swaddlers|2|walmart", a.Key().String())
}

func TestSearchParams_Min(t *testing.T) {
	assert.Equal(t, DefaultMinProducts, SearchParams{}.Min())
	assert.Equal(t, 5, SearchParams{MinProducts: 5}.Min())
}

func TestIsKnownRetailer(t *testing.T) {
	for _, r := range AllRetailers() {
		assert.True(t, IsKnownRetailer(r))
	}
	assert.False(t, IsKnownRetailer("target"))
}

func TestProductListing_JSONOmitsUnsetTimestamps(t *testing.T) {
	fetched := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewListing("Huggies", "Little Movers", "4", RetailerWalmart, 140, 49.99, "https://walmart.ca/p/2", true, fetched)

	raw, err := json.Marshal(l)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "created_at")
	assert.NotContains(t, fields, "updated_at")
	assert.Contains(t, fields, "last_fetched_at")

	l.CreatedAt, l.UpdatedAt = fetched, fetched
	raw, err = json.Marshal(l)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"created_at":"2025-03-01T12:00:00Z"`)
	assert.Contains(t, string(raw), `"updated_at":"2025-03-01T12:00:00Z"`)
}
