package scrape

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
	"github.com/diaperwatch/diaperwatch-cli/internal/resilience"
	"github.com/diaperwatch/diaperwatch-cli/internal/retailer"
)

type fakeAdapter struct {
	name   string
	search func(ctx context.Context, params model.SearchParams) ([]model.ProductListing, error)
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) SearchDiapers(ctx context.Context, params model.SearchParams) ([]model.ProductListing, error) {
	return f.search(ctx, params)
}

func returning(name string, n int) *fakeAdapter {
	return &fakeAdapter{name: name, search: func(context.Context, model.SearchParams) ([]model.ProductListing, error) {
		return listings(name, n), nil
	}}
}

func listings(retailer string, n int) []model.ProductListing {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	out := make([]model.ProductListing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.NewListing("Pampers", "Swaddlers", "3", retailer, 100+i, 49.99, "https://example.com/p", true, now))
	}
	return out
}

type memRecorder struct {
	mu       sync.Mutex
	sessions []model.ScrapeSessionLog
	err      error
}

func (m *memRecorder) RecordSession(_ context.Context, s model.ScrapeSessionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return m.err
}

func (m *memRecorder) byRetailer() map[string]model.ScrapeSessionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.ScrapeSessionLog, len(m.sessions))
	for _, s := range m.sessions {
		out[s.Retailer] = s
	}
	return out
}

var params = model.SearchParams{Brands: []string{"Pampers"}, Sizes: []string{"3"}, MinProducts: 2}

func TestRun_AllSucceed(t *testing.T) {
	rec := &memRecorder{}
	o := New([]retailer.Adapter{returning("amazon", 2), returning("walmart", 3)}, WithRecorder(rec))

	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, res.Listings, 5)
	require.Len(t, res.Sessions, 2)
	assert.Equal(t, "amazon", res.Sessions[0].Retailer)
	assert.Equal(t, "walmart", res.Sessions[1].Retailer)
	assert.Equal(t, 0, res.Failed())

	got := rec.byRetailer()
	require.Len(t, got, 2)
	assert.True(t, got["amazon"].Success)
	assert.Equal(t, 2, got["amazon"].ItemsFound)
	assert.Equal(t, 3, got["walmart"].ItemsFound)
	assert.NotEmpty(t, got["walmart"].ID)
	assert.NotNil(t, got["walmart"].DurationMs)
}

func TestRun_FailureIsolated(t *testing.T) {
	rec := &memRecorder{}
	failing := &fakeAdapter{name: "costco", search: func(context.Context, model.SearchParams) ([]model.ProductListing, error) {
		return listings("costco", 1), errors.New("boom")
	}}
	o := New([]retailer.Adapter{returning("amazon", 2), failing}, WithRecorder(rec))

	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, res.Listings, 2, "listings from a failed adapter are discarded")
	assert.Equal(t, 1, res.Failed())

	got := rec.byRetailer()
	assert.False(t, got["costco"].Success)
	assert.Equal(t, "boom", got["costco"].ErrorMessage)
	assert.Equal(t, 0, got["costco"].ItemsFound)
	assert.True(t, got["amazon"].Success)
}

func TestRun_PanicBecomesFailedSession(t *testing.T) {
	panicky := &fakeAdapter{name: "wellca", search: func(context.Context, model.SearchParams) ([]model.ProductListing, error) {
		panic("nil map")
	}}
	o := New([]retailer.Adapter{panicky, returning("amazon", 1)})

	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, res.Listings, 1)
	assert.False(t, res.Sessions[0].Success)
	assert.Equal(t, "panic: nil map", res.Sessions[0].ErrorMessage)
}

func TestRun_EmptyResultIsSuccess(t *testing.T) {
	o := New([]retailer.Adapter{returning("shoppers", 0)})

	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Empty(t, res.Listings)
	assert.True(t, res.Sessions[0].Success)
	assert.Equal(t, 0, res.Sessions[0].ItemsFound)
}

func TestRun_RunsConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(3)
	release := make(chan struct{})
	blocking := func(name string) *fakeAdapter {
		return &fakeAdapter{name: name, search: func(ctx context.Context, _ model.SearchParams) ([]model.ProductListing, error) {
			started.Done()
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return listings(name, 1), nil
		}}
	}
	o := New([]retailer.Adapter{blocking("a"), blocking("b"), blocking("c")})

	go func() {
		started.Wait()
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := o.Run(ctx, params)
	require.NoError(t, err)
	assert.Len(t, res.Listings, 3)
}

func TestRun_DeadlineKeepsPartialResults(t *testing.T) {
	slow := &fakeAdapter{name: "londondrugs", search: func(ctx context.Context, _ model.SearchParams) ([]model.ProductListing, error) {
		<-ctx.Done()
		return listings("londondrugs", 2), ctx.Err()
	}}
	o := New([]retailer.Adapter{slow, returning("amazon", 1)}, WithDeadline(20*time.Millisecond))

	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, res.Listings, 3)
	assert.False(t, res.Sessions[0].Success)
	assert.Equal(t, "deadline exceeded", res.Sessions[0].ErrorMessage)
	assert.Equal(t, 2, res.Sessions[0].ItemsFound)
	assert.True(t, res.Sessions[1].Success)
}

func TestRun_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stuck := &fakeAdapter{name: "amazon", search: func(ctx context.Context, _ model.SearchParams) ([]model.ProductListing, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	rec := &memRecorder{}
	o := New([]retailer.Adapter{stuck}, WithRecorder(rec))

	res, err := o.Run(ctx, params)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Sessions[0].Success, "cancellation is not a retailer failure")
	assert.Equal(t, "cancelled", res.Sessions[0].ErrorMessage)
	assert.Len(t, rec.byRetailer(), 1, "sessions are recorded after cancellation")
}

func TestRun_CancelKeepsPartialListingsAndBreakerClosed(t *testing.T) {
	breakers := resilience.NewRetailerBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	rec := &memRecorder{}

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		partial := &fakeAdapter{name: "walmart", search: func(ctx context.Context, _ model.SearchParams) ([]model.ProductListing, error) {
			cancel()
			<-ctx.Done()
			return listings("walmart", 2), ctx.Err()
		}}
		o := New([]retailer.Adapter{partial}, WithRecorder(rec), WithBreakers(breakers))

		res, err := o.Run(ctx, params)
		require.ErrorIs(t, err, context.Canceled)
		assert.Len(t, res.Listings, 2)
		assert.Equal(t, 2, res.Sessions[0].ItemsFound)
		assert.True(t, res.Sessions[0].Success)
	}

	cb := breakers.Get("walmart")
	assert.Equal(t, resilience.CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestRun_CanceledErrorOnLiveJobFails(t *testing.T) {
	// An adapter reporting context.Canceled on a live job is a real failure.
	rogue := &fakeAdapter{name: "costco", search: func(context.Context, model.SearchParams) ([]model.ProductListing, error) {
		return listings("costco", 1), context.Canceled
	}}
	res, err := New([]retailer.Adapter{rogue}).Run(context.Background(), params)
	require.NoError(t, err)
	assert.Empty(t, res.Listings)
	assert.False(t, res.Sessions[0].Success)
}

func TestRun_RecorderErrorIgnored(t *testing.T) {
	rec := &memRecorder{err: errors.New("db down")}
	o := New([]retailer.Adapter{returning("amazon", 1)}, WithRecorder(rec))

	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, res.Listings, 1)
}

func TestRun_BreakerOpensOnRepeatedEmptyRuns(t *testing.T) {
	breakers := resilience.NewRetailerBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	calls := 0
	empty := &fakeAdapter{name: "costco", search: func(context.Context, model.SearchParams) ([]model.ProductListing, error) {
		calls++
		return nil, nil
	}}
	o := New([]retailer.Adapter{empty}, WithBreakers(breakers))

	for i := 0; i < 2; i++ {
		res, err := o.Run(context.Background(), params)
		require.NoError(t, err)
		assert.True(t, res.Sessions[0].Success)
	}
	assert.Equal(t, resilience.CircuitOpen, breakers.Get("costco").State())

	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "open circuit skips the adapter")
	assert.False(t, res.Sessions[0].Success)
	assert.Equal(t, "circuit breaker is open", res.Sessions[0].ErrorMessage)
}

func TestRun_BreakerResetsOnSuccess(t *testing.T) {
	breakers := resilience.NewRetailerBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 2})
	o := New([]retailer.Adapter{returning("walmart", 0)}, WithBreakers(breakers))
	_, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 1, breakers.Get("walmart").Failures())

	o = New([]retailer.Adapter{returning("walmart", 1)}, WithBreakers(breakers))
	_, err = o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 0, breakers.Get("walmart").Failures())
}

func TestRun_ClockUsedForSessionTimes(t *testing.T) {
	t0 := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return t0.Add(time.Duration(tick) * time.Second)
	}
	o := New([]retailer.Adapter{returning("amazon", 1)}, WithClock(clock))

	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	s := res.Sessions[0]
	assert.Equal(t, t0.Add(time.Second), s.StartedAt)
	assert.Equal(t, t0.Add(2*time.Second), s.CompletedAt)
	assert.Equal(t, time.Second, s.Duration())
}

func TestRun_NoAdapters(t *testing.T) {
	res, err := New(nil).Run(context.Background(), params)
	require.NoError(t, err)
	assert.Empty(t, res.Listings)
	assert.Empty(t, res.Sessions)
}
