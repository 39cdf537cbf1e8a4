package catalog

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/diaperwatch/diaperwatch-cli/internal/extract"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

// fixtureFile is the YAML layout of a fixture catalog.
type fixtureFile struct {
	FetchedAt time.Time        `yaml:"fetched_at"`
	Listings  []fixtureListing `yaml:"listings"`
}

type fixtureListing struct {
	Brand    string         `yaml:"brand"`
	Type     string         `yaml:"type"`
	Size     string         `yaml:"size"`
	Count    int            `yaml:"count"`
	Retailer string         `yaml:"retailer"`
	Price    float64        `yaml:"price"`
	URL      string         `yaml:"url"`
	InStock  *bool          `yaml:"in_stock"`
	History  []fixturePrice `yaml:"history"`
}

type fixturePrice struct {
	Price      float64   `yaml:"price"`
	InStock    *bool     `yaml:"in_stock"`
	RecordedAt time.Time `yaml:"recorded_at"`
}

// FixtureEntry is one fixture listing with its past prices.
type FixtureEntry struct {
	Listing model.ProductListing
	History []model.PriceHistoryEntry
}

// Fixture is a static catalog used to seed a store or to serve reads while
// the store is empty. It is never treated as authoritative data.
type Fixture struct {
	Entries []FixtureEntry
}

// LoadFixture reads a YAML fixture catalog.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read fixture %s", path)
	}
	fx, err := ParseFixture(data)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: fixture %s", path)
	}
	return fx, nil
}

// ParseFixture decodes a YAML fixture catalog. Invalid listings are
// rejected rather than skipped.
func ParseFixture(data []byte) (*Fixture, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "parse yaml")
	}
	fetchedAt := f.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	fx := &Fixture{Entries: make([]FixtureEntry, 0, len(f.Listings))}
	for i, fl := range f.Listings {
		l := model.NewListing(fl.Brand, fl.Type, fl.Size, fl.Retailer, fl.Count, fl.Price, fl.URL, boolOr(fl.InStock, true), fetchedAt)
		if l.Type == "" {
			l.Type = extract.DefaultProductLine
		}
		if err := l.Validate(); err != nil {
			return nil, eris.Wrapf(err, "listing %d", i+1)
		}
		// Stable synthetic IDs keep fixture sorting deterministic.
		l.ID = int64(i + 1)
		l.CreatedAt, l.UpdatedAt = l.LastFetchedAt, l.LastFetchedAt

		entry := FixtureEntry{Listing: l}
		for _, h := range fl.History {
			entry.History = append(entry.History, model.PriceHistoryEntry{
				Price:        model.RoundPrice(h.Price),
				PricePerUnit: model.UnitPrice(h.Price, l.Count),
				InStock:      boolOr(h.InStock, true),
				RecordedAt:   h.RecordedAt.UTC(),
			})
		}
		sort.SliceStable(entry.History, func(a, b int) bool {
			return entry.History[a].RecordedAt.Before(entry.History[b].RecordedAt)
		})
		fx.Entries = append(fx.Entries, entry)
	}
	return fx, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Listings returns the fixture's listings.
func (f *Fixture) Listings() []model.ProductListing {
	out := make([]model.ProductListing, 0, len(f.Entries))
	for _, e := range f.Entries {
		out = append(out, e.Listing)
	}
	return out
}

// Query applies the same in-stock rule, filter and ordering as the store.
func (f *Fixture) Query(filter model.ListingFilter, s model.ListingSort) []model.ProductListing {
	var out []model.ProductListing
	for _, l := range f.Listings() {
		if l.InStock && filter.Matches(l) {
			out = append(out, l)
		}
	}
	model.SortListings(out, s)
	return out
}

// Distinct returns the distinct values of column across all fixture listings.
func (f *Fixture) Distinct(column model.DistinctColumn) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range f.Listings() {
		var v string
		switch column {
		case model.DistinctBrand:
			v = l.Brand
		case model.DistinctSize:
			v = l.Size
		case model.DistinctRetailer:
			v = l.Retailer
		default:
			return nil
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	if column == model.DistinctSize {
		model.SortSizes(out)
	}
	return out
}

// SeedSummary reports a Seed call.
type SeedSummary struct {
	Listings int `json:"listings"`
	History  int `json:"history"`
}

// Seed persists fixture listings through the regular upsert path. Each
// listing gets its fixture history plus one entry for its current price.
func (s *Service) Seed(ctx context.Context, fx *Fixture) (*SeedSummary, error) {
	if fx == nil {
		return nil, eris.New("catalog: nil fixture")
	}
	summary := &SeedSummary{}
	var history []model.PriceHistoryEntry
	for _, e := range fx.Entries {
		l := e.Listing
		l.ID = 0
		saved, err := s.store.UpsertListing(ctx, l)
		if err != nil {
			return summary, eris.Wrapf(err, "catalog: seed %s", l.Key())
		}
		summary.Listings++
		for _, h := range e.History {
			h.ProductID = saved.ID
			history = append(history, h)
		}
		history = append(history, model.PriceHistoryEntry{
			ProductID:    saved.ID,
			Price:        saved.Price,
			PricePerUnit: saved.PricePerUnit,
			InStock:      saved.InStock,
			RecordedAt:   saved.LastFetchedAt,
		})
	}

	n, err := s.store.AppendHistory(ctx, history)
	if err != nil {
		return summary, eris.Wrap(err, "catalog: seed history")
	}
	summary.History = n

	zap.L().Info("catalog: fixture seeded",
		zap.Int("listings", summary.Listings),
		zap.Int("history", summary.History),
	)
	return summary, nil
}
