// Package scrape fans a search out to every enabled retailer adapter in
// parallel and records one session log per retailer.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
	"github.com/diaperwatch/diaperwatch-cli/internal/resilience"
	"github.com/diaperwatch/diaperwatch-cli/internal/retailer"
)

// SessionRecorder persists per-retailer session logs.
type SessionRecorder interface {
	RecordSession(ctx context.Context, s model.ScrapeSessionLog) error
}

// JobResult is the outcome of one orchestrated run.
type JobResult struct {
	// Listings from every adapter, flattened. Order is unspecified.
	Listings []model.ProductListing
	// Sessions has one entry per adapter, in adapter order.
	Sessions []model.ScrapeSessionLog
}

// Failed returns the number of failed sessions.
func (r *JobResult) Failed() int {
	n := 0
	for _, s := range r.Sessions {
		if !s.Success {
			n++
		}
	}
	return n
}

// errNoResults marks an empty run for the circuit breaker only; it is never
// surfaced in a session log.
var errNoResults = errors.New("scrape: no results")

// Orchestrator runs adapters concurrently.
type Orchestrator struct {
	adapters []retailer.Adapter
	recorder SessionRecorder
	breakers *resilience.RetailerBreakers
	deadline time.Duration
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records a session log for every adapter run.
func WithRecorder(r SessionRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithBreakers skips retailers whose circuit breaker is open.
func WithBreakers(b *resilience.RetailerBreakers) Option {
	return func(o *Orchestrator) { o.breakers = b }
}

// WithDeadline bounds each adapter run. Zero waits for the slowest adapter.
func WithDeadline(d time.Duration) Option {
	return func(o *Orchestrator) { o.deadline = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator over adapters.
func New(adapters []retailer.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{adapters: adapters, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run searches every adapter in parallel and waits for all of them. One
// adapter failing never affects the others. The returned error is non-nil
// only when ctx was cancelled; the partial result is still returned and the
// interrupted adapters are logged as successful sessions marked "cancelled".
func (o *Orchestrator) Run(ctx context.Context, params model.SearchParams) (*JobResult, error) {
	type outcome struct {
		listings []model.ProductListing
		session  model.ScrapeSessionLog
	}
	outcomes := make([]outcome, len(o.adapters))

	zap.L().Info("scrape: job started",
		zap.Int("retailers", len(o.adapters)),
		zap.Strings("brands", params.Brands),
		zap.Strings("sizes", params.Sizes),
	)

	var g errgroup.Group
	for i, a := range o.adapters {
		g.Go(func() error {
			listings, session := o.runAdapter(ctx, a, params)
			o.record(ctx, session)
			outcomes[i] = outcome{listings: listings, session: session}
			return nil // failures are captured in the session log
		})
	}
	_ = g.Wait()

	res := &JobResult{Sessions: make([]model.ScrapeSessionLog, 0, len(outcomes))}
	for _, oc := range outcomes {
		res.Listings = append(res.Listings, oc.listings...)
		res.Sessions = append(res.Sessions, oc.session)
	}

	zap.L().Info("scrape: job finished",
		zap.Int("listings", len(res.Listings)),
		zap.Int("failed_retailers", res.Failed()),
	)
	return res, ctx.Err()
}

func (o *Orchestrator) runAdapter(ctx context.Context, a retailer.Adapter, params model.SearchParams) ([]model.ProductListing, model.ScrapeSessionLog) {
	name := a.Name()
	start := o.now()
	session := model.ScrapeSessionLog{
		ID:        uuid.NewString(),
		Retailer:  name,
		StartedAt: start.UTC(),
	}

	actx := ctx
	if o.deadline > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	var listings []model.ProductListing
	var err error
	if o.breakers != nil {
		listings, err = resilience.ExecuteVal(actx, o.breakers.Get(name), func(ctx context.Context) ([]model.ProductListing, error) {
			l, err := safeSearch(ctx, a, params)
			if err == nil && len(l) == 0 {
				return l, errNoResults
			}
			return l, err
		})
		if errors.Is(err, errNoResults) {
			err = nil
		}
	} else {
		listings, err = safeSearch(actx, a, params)
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// The job was stopped, not the retailer: keep what it found and do
		// not log the run as a failure.
		session.ErrorMessage = "cancelled"
		err = nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// Partial results from a timed-out adapter are kept.
		err = errors.New("deadline exceeded")
	default:
		listings = nil
	}

	end := o.now()
	ms := end.Sub(start).Milliseconds()
	session.CompletedAt = end.UTC()
	session.DurationMs = &ms
	session.ItemsFound = len(listings)
	session.Success = err == nil
	if err != nil {
		session.ErrorMessage = err.Error()
	}

	log := zap.L().With(
		zap.String("retailer", name),
		zap.Int("items", len(listings)),
		zap.Int64("duration_ms", ms),
	)
	if err != nil {
		log.Warn("scrape: retailer failed", zap.Error(err))
	} else {
		log.Info("scrape: retailer done")
	}
	return listings, session
}

// safeSearch converts an adapter panic into an error.
func safeSearch(ctx context.Context, a retailer.Adapter, params model.SearchParams) (listings []model.ProductListing, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("scrape: adapter panic",
				zap.String("retailer", a.Name()),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			listings = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.SearchDiapers(ctx, params)
}

func (o *Orchestrator) record(ctx context.Context, s model.ScrapeSessionLog) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordSession(context.WithoutCancel(ctx), s); err != nil {
		zap.L().Error("scrape: record session failed",
			zap.String("retailer", s.Retailer),
			zap.Error(err),
		)
	}
}
