// Package monitoring summarizes per-retailer scrape health from the session
// logs and alerts a webhook when retailers start failing.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
	"github.com/diaperwatch/diaperwatch-cli/internal/resilience"
	"github.com/diaperwatch/diaperwatch-cli/internal/store"
)

// RetailerHealth is one retailer's scrape record within the lookback window.
type RetailerHealth struct {
	Retailer            string    `json:"retailer"`
	Runs                int       `json:"runs"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	FailRate            float64   `json:"fail_rate"`
	ItemsFound          int       `json:"items_found"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastRunAt           time.Time `json:"last_run_at,omitzero"`
	LastSuccessAt       time.Time `json:"last_success_at,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	Breaker             string    `json:"breaker,omitempty"`
}

// MetricsSnapshot holds a point-in-time view of scrape health.
type MetricsSnapshot struct {
	Retailers []RetailerHealth `json:"retailers"`

	TotalRuns  int     `json:"total_runs"`
	FailedRuns int     `json:"failed_runs"`
	FailRate   float64 `json:"fail_rate"`

	ListingCount      int       `json:"listing_count"`
	LastSuccessfulRun time.Time `json:"last_successful_run,omitzero"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// CatalogAge is the time since the last successful run, or zero when there
// has never been one.
func (s *MetricsSnapshot) CatalogAge() time.Duration {
	if s.LastSuccessfulRun.IsZero() {
		return 0
	}
	return s.CollectedAt.Sub(s.LastSuccessfulRun)
}

// HealthSource is the subset of store.Store the collector reads.
type HealthSource interface {
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.ScrapeSessionLog, error)
	CountListings(ctx context.Context) (int, error)
	LastSuccessfulRun(ctx context.Context) (time.Time, bool, error)
}

// Collector gathers metrics from the store and the live circuit breakers.
type Collector struct {
	source    HealthSource
	breakers  *resilience.RetailerBreakers
	retailers []string
	now       func() time.Time
}

// NewCollector creates a new metrics collector. retailers lists the enabled
// retailers so that ones with no recent sessions still appear. breakers may
// be nil.
func NewCollector(src HealthSource, breakers *resilience.RetailerBreakers, retailers []string) *Collector {
	return &Collector{source: src, breakers: breakers, retailers: retailers, now: time.Now}
}

// Collect gathers a snapshot of scrape health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Sessions come back newest first.
	sessions, err := c.source.ListSessions(ctx, store.SessionFilter{Since: cutoff, Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sessions")
	}

	byRetailer := make(map[string]*RetailerHealth)
	get := func(name string) *RetailerHealth {
		h, ok := byRetailer[name]
		if !ok {
			h = &RetailerHealth{Retailer: name}
			byRetailer[name] = h
		}
		return h
	}
	for _, r := range c.retailers {
		get(r)
	}

	streakOver := make(map[string]bool)
	for _, s := range sessions {
		h := get(s.Retailer)
		h.Runs++
		h.ItemsFound += s.ItemsFound
		if h.LastRunAt.IsZero() {
			h.LastRunAt = s.CompletedAt
			h.LastError = s.ErrorMessage
		}
		if s.Success {
			h.Succeeded++
			if h.LastSuccessAt.IsZero() {
				h.LastSuccessAt = s.CompletedAt
			}
			streakOver[s.Retailer] = true
		} else {
			h.Failed++
			if !streakOver[s.Retailer] {
				h.ConsecutiveFailures++
			}
		}
	}

	if c.breakers != nil {
		for _, b := range c.breakers.Snapshot() {
			get(b.Retailer).Breaker = b.State.String()
		}
	}

	for _, h := range byRetailer {
		if h.Runs > 0 {
			h.FailRate = float64(h.Failed) / float64(h.Runs)
		}
		snap.TotalRuns += h.Runs
		snap.FailedRuns += h.Failed
		snap.Retailers = append(snap.Retailers, *h)
	}
	sort.Slice(snap.Retailers, func(i, j int) bool {
		return snap.Retailers[i].Retailer < snap.Retailers[j].Retailer
	})
	if snap.TotalRuns > 0 {
		snap.FailRate = float64(snap.FailedRuns) / float64(snap.TotalRuns)
	}

	if snap.ListingCount, err = c.source.CountListings(ctx); err != nil {
		return nil, eris.Wrap(err, "monitoring: count listings")
	}
	last, ok, err := c.source.LastSuccessfulRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: last successful run")
	}
	if ok {
		snap.LastSuccessfulRun = last
	}

	return snap, nil
}
