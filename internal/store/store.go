// Package store persists the product catalog, its price history and the
// per-retailer scrape session logs.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

// SessionFilter restricts scrape session reads.
type SessionFilter struct {
	Retailer string    `json:"retailer,omitempty"`
	Since    time.Time `json:"since,omitzero"`
	Limit    int       `json:"limit,omitempty"`
}

// Store defines the persistence interface for the catalog.
type Store interface {
	// Listings
	UpsertListing(ctx context.Context, l model.ProductListing) (*model.ProductListing, error)
	QueryListings(ctx context.Context, filter model.ListingFilter, sort model.ListingSort) ([]model.ProductListing, error)
	DistinctValues(ctx context.Context, column model.DistinctColumn) ([]string, error)
	CountListings(ctx context.Context) (int, error)

	// Price history
	RecordHistory(ctx context.Context, listingID int64, totalPrice, pricePerUnit float64, inStock bool) (*model.PriceHistoryEntry, error)
	AppendHistory(ctx context.Context, entries []model.PriceHistoryEntry) (int, error)
	ListHistory(ctx context.Context, listingID int64) ([]model.PriceHistoryEntry, error)

	// Scrape sessions
	RecordSession(ctx context.Context, s model.ScrapeSessionLog) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSessionLog, error)
	LastSuccessfulRun(ctx context.Context) (time.Time, bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and tunes a store driver.
type Config struct {
	Driver      string
	DatabaseURL string
	Pool        *PoolConfig
}

// Open connects to the store named by cfg.Driver ("postgres" or "sqlite").
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql", "pgx":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case "sqlite", "sqlite3":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// sortColumns maps sort fields to SQL columns. ORDER BY is only ever built
// from this table.
var sortColumns = map[model.SortField]string{
	model.SortPricePerUnit: "price_per_unit",
	model.SortTotalPrice:   "price",
	model.SortBrand:        "brand",
	model.SortUpdatedAt:    "updated_at",
}

func orderClause(s model.ListingSort) string {
	s = s.Normalize()
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", sortColumns[s.Field], dir)
}

// whereClause builds the in-stock listing filter. placeholder renders the
// n-th (1-based) bind parameter for the driver.
func whereClause(f model.ListingFilter, placeholder func(n int) string) (string, []any) {
	f = f.Normalize()
	clause := " WHERE in_stock"
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		clause += fmt.Sprintf(" AND %s = %s", col, placeholder(len(args)))
	}
	add("brand", f.Brand)
	add("size", f.Size)
	add("retailer", f.Retailer)
	return clause, args
}

func distinctQuery(column model.DistinctColumn) (string, error) {
	if !column.Valid() {
		return "", eris.Errorf("store: invalid distinct column %q", column)
	}
	return fmt.Sprintf("SELECT DISTINCT %s FROM products ORDER BY %s", column, column), nil
}

func sortDistinct(column model.DistinctColumn, values []string) []string {
	if column == model.DistinctSize {
		model.SortSizes(values)
	}
	return values
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (model.ProductListing, error) {
	var l model.ProductListing
	err := row.Scan(&l.ID, &l.Brand, &l.Type, &l.Size, &l.Count, &l.Retailer,
		&l.Price, &l.PricePerUnit, &l.URL, &l.InStock,
		&l.LastFetchedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	l.LastFetchedAt = l.LastFetchedAt.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func validateListing(l model.ProductListing) error {
	if err := l.Validate(); err != nil {
		return eris.Wrap(err, "store: invalid listing")
	}
	return nil
}

func sessionLimit(filter SessionFilter) int {
	if filter.Limit <= 0 {
		return 100
	}
	return filter.Limit
}
