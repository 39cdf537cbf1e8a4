package model

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Retailer names. Listings are only ever attributed to one of these.
const (
	RetailerAmazon      = "amazon"
	RetailerWalmart     = "walmart"
	RetailerCostco      = "costco"
	RetailerShoppers    = "shoppers"
	RetailerLondonDrugs = "londondrugs"
	RetailerWellCa      = "wellca"
)

// AllRetailers returns the closed set of supported retailers in display order.
func AllRetailers() []string {
	return []string{
		RetailerAmazon,
		RetailerWalmart,
		RetailerCostco,
		RetailerShoppers,
		RetailerLondonDrugs,
		RetailerWellCa,
	}
}

// IsKnownRetailer reports whether name is one of AllRetailers.
func IsKnownRetailer(name string) bool {
	for _, r := range AllRetailers() {
		if r == name {
			return true
		}
	}
	return false
}

// ProductListing is one retailer's current offer for one product variant.
type ProductListing struct {
	ID            int64     `json:"id,omitempty"`
	Brand         string    `json:"brand"`
	Type          string    `json:"type"`
	Size          string    `json:"size"`
	Count         int       `json:"count"`
	Retailer      string    `json:"retailer"`
	Price         float64   `json:"price"`
	PricePerUnit  float64   `json:"price_per_unit"`
	URL           string    `json:"url"`
	InStock       bool      `json:"in_stock"`
	LastFetchedAt time.Time `json:"last_fetched_at"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// ListingKey is the natural identity of a listing.
type ListingKey struct {
	Brand    string
	Type     string
	Size     string
	Retailer string
}

func (k ListingKey) String() string {
	return strings.Join([]string{k.Brand, k.Type, k.Size, k.Retailer}, "|")
}

// Key returns the listing's natural key.
func (l ProductListing) Key() ListingKey {
	return ListingKey{Brand: l.Brand, Type: l.Type, Size: l.Size, Retailer: l.Retailer}
}

// NewListing builds a listing with rounded prices and a derived price per unit.
func NewListing(brand, productType, size, retailer string, count int, price float64, url string, inStock bool, fetchedAt time.Time) ProductListing {
	l := ProductListing{
		Brand:         brand,
		Type:          productType,
		Size:          size,
		Count:         count,
		Retailer:      retailer,
		Price:         RoundPrice(price),
		URL:           url,
		InStock:       inStock,
		LastFetchedAt: fetchedAt.UTC(),
	}
	l.PricePerUnit = UnitPrice(l.Price, count)
	return l
}

// Validate rejects listings that must never be persisted.
func (l ProductListing) Validate() error {
	switch {
	case strings.TrimSpace(l.Brand) == "":
		return eris.New("listing: brand is required")
	case strings.TrimSpace(l.Size) == "":
		return eris.New("listing: size is required")
	case strings.TrimSpace(l.Type) == "":
		return eris.New("listing: type is required")
	case !IsKnownRetailer(l.Retailer):
		return eris.Errorf("listing: unknown retailer %q", l.Retailer)
	case l.Count <= 0:
		return eris.Errorf("listing: count must be positive, got %d", l.Count)
	case l.Price <= 0:
		return eris.Errorf("listing: price must be positive, got %.2f", l.Price)
	}
	return nil
}

// UnitPrice returns price/count rounded to 4 places. Zero when count is not positive.
func UnitPrice(price float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	return RoundUnitPrice(price / float64(count))
}

// RoundPrice rounds to cents, half away from zero.
func RoundPrice(v float64) float64 {
	return roundTo(v, 2)
}

// RoundUnitPrice rounds to 4 decimal places, half away from zero.
func RoundUnitPrice(v float64) float64 {
	return roundTo(v, 4)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// PriceHistoryEntry is an append-only snapshot of a listing's price and availability.
type PriceHistoryEntry struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	Price        float64   `json:"price"`
	PricePerUnit float64   `json:"price_per_unit"`
	InStock      bool      `json:"in_stock"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// SearchParams selects the brand x size combinations an adapter searches for.
type SearchParams struct {
	Brands []string `json:"brands"`
	Sizes  []string `json:"sizes"`
	// MinProducts is the number of valid listings per combination after which
	// remaining query/URL variants are skipped. Zero means DefaultMinProducts.
	MinProducts int `json:"min_products,omitempty"`
}

// DefaultMinProducts is used when SearchParams.MinProducts is unset.
const DefaultMinProducts = 3

// Min returns the effective minimum product count.
func (p SearchParams) Min() int {
	if p.MinProducts <= 0 {
		return DefaultMinProducts
	}
	return p.MinProducts
}
