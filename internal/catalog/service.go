// Package catalog coordinates scrape jobs with the catalog store: it persists
// job results, decides when the catalog is stale, and serves reads with an
// optional fixture fallback for empty stores.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
	"github.com/diaperwatch/diaperwatch-cli/internal/scrape"
	"github.com/diaperwatch/diaperwatch-cli/internal/store"
)

// DefaultStaleAfter is how old the last successful run may be before a
// refresh is triggered.
const DefaultStaleAfter = 12 * time.Hour

// ErrJobRunning is returned when a scrape job is already in progress.
var ErrJobRunning = eris.New("catalog: scrape job already running")

// Runner executes one scrape job. *scrape.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, params model.SearchParams) (*scrape.JobResult, error)
}

// Options configures a Service.
type Options struct {
	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration
	// Fixture is served when the store holds no listings.
	Fixture *Fixture
	Now     func() time.Time
}

// JobSummary reports one scrape job.
type JobSummary struct {
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Found      int                      `json:"found"`
	Stored     int                      `json:"stored"`
	Failed     int                      `json:"failed"`
	Sessions   []model.ScrapeSessionLog `json:"sessions"`
}

// Service is the catalog's entry point for the CLI and HTTP surface.
type Service struct {
	store      store.Store
	runner     Runner
	fixture    *Fixture
	staleAfter time.Duration
	now        func() time.Time

	running sync.Mutex
}

// NewService creates a Service. runner may be nil for read-only use.
func NewService(st store.Store, runner Runner, opts Options) *Service {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:      st,
		runner:     runner,
		fixture:    opts.Fixture,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
	}
}

// RunScrapingJob runs every adapter and persists what they found. Only one
// job runs at a time; a concurrent call returns ErrJobRunning.
func (s *Service) RunScrapingJob(ctx context.Context, params model.SearchParams) (*JobSummary, error) {
	if s.runner == nil {
		return nil, eris.New("catalog: no scrape runner configured")
	}
	if !s.running.TryLock() {
		return nil, ErrJobRunning
	}
	defer s.running.Unlock()

	summary := &JobSummary{StartedAt: s.now().UTC()}
	res, runErr := s.runner.Run(ctx, params)
	if res != nil {
		summary.Found = len(res.Listings)
		summary.Sessions = res.Sessions
		// Partial results from a cancelled job are still worth keeping.
		summary.Stored, summary.Failed = s.persist(context.WithoutCancel(ctx), res.Listings)
	}
	summary.FinishedAt = s.now().UTC()

	zap.L().Info("catalog: scrape job finished",
		zap.Int("found", summary.Found),
		zap.Int("stored", summary.Stored),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	if runErr != nil {
		return summary, eris.Wrap(runErr, "catalog: scrape job interrupted")
	}
	return summary, nil
}

// persist upserts each listing and appends a history row. A failed write is
// logged and counted; the rest of the batch continues.
func (s *Service) persist(ctx context.Context, listings []model.ProductListing) (stored, failed int) {
	for _, l := range listings {
		log := zap.L().With(zap.String("key", l.Key().String()))
		saved, err := s.store.UpsertListing(ctx, l)
		if err != nil {
			log.Warn("catalog: upsert failed", zap.Error(err))
			failed++
			continue
		}
		if _, err := s.store.RecordHistory(ctx, saved.ID, saved.Price, saved.PricePerUnit, saved.InStock); err != nil {
			log.Warn("catalog: history write failed", zap.Error(err))
			failed++
			continue
		}
		stored++
	}
	return stored, failed
}

// Running reports whether a scrape job is in progress.
func (s *Service) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

// IsStale reports whether the catalog needs a refresh: no successful run is
// recorded, or the last one is older than StaleAfter.
func (s *Service) IsStale(ctx context.Context) (bool, error) {
	last, ok, err := s.store.LastSuccessfulRun(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return s.now().Sub(last) > s.staleAfter, nil
}

// RefreshIfStale runs a scrape job when the catalog is stale. It returns
// whether a job ran. A job already in progress counts as not running one.
func (s *Service) RefreshIfStale(ctx context.Context, params model.SearchParams) (bool, error) {
	stale, err := s.IsStale(ctx)
	if err != nil {
		return false, eris.Wrap(err, "catalog: check staleness")
	}
	if !stale {
		return false, nil
	}
	_, err = s.RunScrapingJob(ctx, params)
	if errors.Is(err, ErrJobRunning) {
		zap.L().Debug("catalog: refresh skipped, job already running")
		return false, nil
	}
	if err != nil {
		return true, err
	}
	return true, nil
}

// GetAllListings returns in-stock listings matching filter. When the store
// is empty and a fixture is configured, the fixture is served instead.
func (s *Service) GetAllListings(ctx context.Context, filter model.ListingFilter, sort model.ListingSort) ([]model.ProductListing, error) {
	listings, err := s.store.QueryListings(ctx, filter, sort)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query listings")
	}
	if len(listings) > 0 || s.fixture == nil {
		return listings, nil
	}
	empty, err := s.storeEmpty(ctx)
	if err != nil || !empty {
		return listings, err
	}
	zap.L().Debug("catalog: store empty, serving fixture listings")
	return s.fixture.Query(filter, sort), nil
}

// StartRefreshIfStale runs RefreshIfStale in a goroutine bound to ctx and
// returns a channel that is closed when it finishes. Nothing starts when no
// runner is configured or a job is already running.
func (s *Service) StartRefreshIfStale(ctx context.Context, params model.SearchParams) <-chan struct{} {
	done := make(chan struct{})
	if s.runner == nil || s.Running() {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		if _, err := s.RefreshIfStale(ctx, params); err != nil {
			zap.L().Warn("catalog: background refresh failed, serving stale catalog", zap.Error(err))
		}
	}()
	return done
}

// ListingsWithRefresh reads the catalog and, when it is stale, starts a
// refresh on refreshCtx without waiting for it. ctx bounds only the read, so
// a caller going away never interrupts the job.
func (s *Service) ListingsWithRefresh(ctx, refreshCtx context.Context, filter model.ListingFilter, sort model.ListingSort, params model.SearchParams) ([]model.ProductListing, error) {
	s.StartRefreshIfStale(refreshCtx, params)
	return s.GetAllListings(ctx, filter, sort)
}

// DistinctBrands lists the brands present in the catalog.
func (s *Service) DistinctBrands(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, model.DistinctBrand)
}

// DistinctSizes lists the sizes present in the catalog, numerically ordered.
func (s *Service) DistinctSizes(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, model.DistinctSize)
}

// DistinctRetailers lists the retailers present in the catalog.
func (s *Service) DistinctRetailers(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, model.DistinctRetailer)
}

func (s *Service) distinct(ctx context.Context, column model.DistinctColumn) ([]string, error) {
	values, err := s.store.DistinctValues(ctx, column)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: distinct %s", column)
	}
	if len(values) == 0 && s.fixture != nil {
		return s.fixture.Distinct(column), nil
	}
	return values, nil
}

// History returns the price history of one listing, oldest first.
func (s *Service) History(ctx context.Context, listingID int64) ([]model.PriceHistoryEntry, error) {
	h, err := s.store.ListHistory(ctx, listingID)
	return h, eris.Wrapf(err, "catalog: history for listing %d", listingID)
}

// Sessions returns recent scrape session logs.
func (s *Service) Sessions(ctx context.Context, filter store.SessionFilter) ([]model.ScrapeSessionLog, error) {
	sessions, err := s.store.ListSessions(ctx, filter)
	return sessions, eris.Wrap(err, "catalog: list sessions")
}

func (s *Service) storeEmpty(ctx context.Context) (bool, error) {
	n, err := s.store.CountListings(ctx)
	if err != nil {
		return false, eris.Wrap(err, "catalog: count listings")
	}
	return n == 0, nil
}
