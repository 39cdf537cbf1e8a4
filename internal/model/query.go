package model

import (
	"sort"
	"strconv"
	"strings"
)

// ListingFilter restricts catalog reads. Empty fields and "all" mean no constraint.
type ListingFilter struct {
	Brand    string `json:"brand,omitempty"`
	Size     string `json:"size,omitempty"`
	Retailer string `json:"retailer,omitempty"`
}

// Normalize clears "all" placeholders and surrounding whitespace.
func (f ListingFilter) Normalize() ListingFilter {
	clean := func(s string) string {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, "all") {
			return ""
		}
		return s
	}
	return ListingFilter{
		Brand:    clean(f.Brand),
		Size:     clean(f.Size),
		Retailer: clean(f.Retailer),
	}
}

// Matches reports whether l satisfies the filter (exact match per set field).
func (f ListingFilter) Matches(l ProductListing) bool {
	f = f.Normalize()
	if f.Brand != "" && l.Brand != f.Brand {
		return false
	}
	if f.Size != "" && l.Size != f.Size {
		return false
	}
	if f.Retailer != "" && l.Retailer != f.Retailer {
		return false
	}
	return true
}

// SortField names a sortable listing column.
type SortField string

const (
	SortPricePerUnit SortField = "price_per_unit"
	SortTotalPrice   SortField = "total_price"
	SortBrand        SortField = "brand"
	SortUpdatedAt    SortField = "updated_at"
)

// ListingSort orders catalog reads.
type ListingSort struct {
	Field SortField `json:"field,omitempty"`
	Desc  bool      `json:"desc,omitempty"`
}

// ParseSortField maps user-facing names to a SortField, falling back to
// price per unit for anything unrecognized.
func ParseSortField(s string) SortField {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "total_price", "price", "totalprice":
		return SortTotalPrice
	case "brand":
		return SortBrand
	case "updated_at", "updated", "last_updated", "lastupdated":
		return SortUpdatedAt
	default:
		return SortPricePerUnit
	}
}

// Normalize returns the sort with a valid field.
func (s ListingSort) Normalize() ListingSort {
	s.Field = ParseSortField(string(s.Field))
	return s
}

// SortListings orders listings in place. Ties break on ID for stable output.
func SortListings(listings []ProductListing, s ListingSort) {
	s = s.Normalize()
	less := func(a, b ProductListing) int {
		switch s.Field {
		case SortTotalPrice:
			return cmpFloat(a.Price, b.Price)
		case SortBrand:
			return strings.Compare(a.Brand, b.Brand)
		case SortUpdatedAt:
			return a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			return cmpFloat(a.PricePerUnit, b.PricePerUnit)
		}
	}
	sort.SliceStable(listings, func(i, j int) bool {
		c := less(listings[i], listings[j])
		if s.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return listings[i].ID < listings[j].ID
	})
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DistinctColumn names a column whose distinct values can be listed.
type DistinctColumn string

const (
	DistinctBrand    DistinctColumn = "brand"
	DistinctSize     DistinctColumn = "size"
	DistinctRetailer DistinctColumn = "retailer"
)

// Valid reports whether c is a known column.
func (c DistinctColumn) Valid() bool {
	switch c {
	case DistinctBrand, DistinctSize, DistinctRetailer:
		return true
	}
	return false
}

// SortSizes orders sizes numerically where possible ("2" < "10"), with
// non-numeric sizes (e.g. "N" for newborn) first in lexical order.
func SortSizes(sizes []string) {
	sort.SliceStable(sizes, func(i, j int) bool {
		a, aErr := strconv.Atoi(sizes[i])
		b, bErr := strconv.Atoi(sizes[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr != nil && bErr != nil:
			return sizes[i] < sizes[j]
		default:
			return aErr != nil
		}
	})
}
