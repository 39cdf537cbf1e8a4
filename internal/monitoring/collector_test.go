package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
	"github.com/diaperwatch/diaperwatch-cli/internal/resilience"
	"github.com/diaperwatch/diaperwatch-cli/internal/store"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type mockSource struct {
	sessions   []model.ScrapeSessionLog
	count      int
	lastRun    time.Time
	sessErr    error
	countErr   error
	lastErr    error
	lastFilter store.SessionFilter
}

func (m *mockSource) ListSessions(_ context.Context, f store.SessionFilter) ([]model.ScrapeSessionLog, error) {
	m.lastFilter = f
	return m.sessions, m.sessErr
}

func (m *mockSource) CountListings(context.Context) (int, error) {
	return m.count, m.countErr
}

func (m *mockSource) LastSuccessfulRun(context.Context) (time.Time, bool, error) {
	return m.lastRun, !m.lastRun.IsZero(), m.lastErr
}

func sess(retailer string, ago time.Duration, ok bool, items int, msg string) model.ScrapeSessionLog {
	return model.ScrapeSessionLog{
		Retailer:     retailer,
		StartedAt:    now.Add(-ago - time.Minute),
		CompletedAt:  now.Add(-ago),
		Success:      ok,
		ItemsFound:   items,
		ErrorMessage: msg,
	}
}

func newTestCollector(src HealthSource, breakers *resilience.RetailerBreakers, retailers ...string) *Collector {
	c := NewCollector(src, breakers, retailers)
	c.now = func() time.Time { return now }
	return c
}

func TestCollector_Collect(t *testing.T) {
	src := &mockSource{
		// Newest first.
		sessions: []model.ScrapeSessionLog{
			sess("walmart", 1*time.Hour, false, 0, "blocked"),
			sess("amazon", 1*time.Hour, true, 12, ""),
			sess("walmart", 2*time.Hour, false, 0, "timeout"),
			sess("walmart", 3*time.Hour, true, 8, ""),
			sess("walmart", 4*time.Hour, false, 0, "timeout"),
		},
		count:   20,
		lastRun: now.Add(-time.Hour),
	}
	c := newTestCollector(src, nil, "amazon", "walmart", "costco")

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-24*time.Hour), src.lastFilter.Since)
	assert.Equal(t, 5, snap.TotalRuns)
	assert.Equal(t, 3, snap.FailedRuns)
	assert.InDelta(t, 0.6, snap.FailRate, 0.0001)
	assert.Equal(t, 20, snap.ListingCount)
	assert.Equal(t, time.Hour, snap.CatalogAge())
	assert.Equal(t, 24, snap.LookbackHours)

	require.Len(t, snap.Retailers, 3)
	assert.Equal(t, "amazon", snap.Retailers[0].Retailer)
	assert.Equal(t, "costco", snap.Retailers[1].Retailer)
	assert.Equal(t, 0, snap.Retailers[1].Runs)

	wm := snap.Retailers[2]
	assert.Equal(t, "walmart", wm.Retailer)
	assert.Equal(t, 4, wm.Runs)
	assert.Equal(t, 1, wm.Succeeded)
	assert.Equal(t, 3, wm.Failed)
	assert.InDelta(t, 0.75, wm.FailRate, 0.0001)
	assert.Equal(t, 2, wm.ConsecutiveFailures)
	assert.Equal(t, 8, wm.ItemsFound)
	assert.Equal(t, "blocked", wm.LastError)
	assert.Equal(t, now.Add(-time.Hour), wm.LastRunAt)
	assert.Equal(t, now.Add(-3*time.Hour), wm.LastSuccessAt)
}

func TestCollector_NeverSucceeded(t *testing.T) {
	src := &mockSource{sessions: []model.ScrapeSessionLog{
		sess("costco", time.Hour, false, 0, "boom"),
		sess("costco", 2*time.Hour, false, 0, "boom"),
	}}
	snap, err := newTestCollector(src, nil).Collect(context.Background(), 24)
	require.NoError(t, err)

	require.Len(t, snap.Retailers, 1)
	assert.Equal(t, 2, snap.Retailers[0].ConsecutiveFailures)
	assert.True(t, snap.Retailers[0].LastSuccessAt.IsZero())
	assert.True(t, snap.LastSuccessfulRun.IsZero())
	assert.Equal(t, time.Duration(0), snap.CatalogAge())
}

func TestCollector_BreakerState(t *testing.T) {
	breakers := resilience.NewRetailerBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	_ = breakers.Get("shoppers").Execute(context.Background(), func(context.Context) error {
		return errors.New("down")
	})
	breakers.Get("amazon")

	snap, err := newTestCollector(&mockSource{}, breakers).Collect(context.Background(), 24)
	require.NoError(t, err)

	require.Len(t, snap.Retailers, 2)
	assert.Equal(t, "closed", snap.Retailers[0].Breaker)
	assert.Equal(t, "open", snap.Retailers[1].Breaker)
}

func TestCollector_Errors(t *testing.T) {
	boom := errors.New("db down")
	tests := []struct {
		name string
		src  *mockSource
		msg  string
	}{
		{"sessions", &mockSource{sessErr: boom}, "list sessions"},
		{"count", &mockSource{countErr: boom}, "count listings"},
		{"last run", &mockSource{lastErr: boom}, "last successful run"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestCollector(tt.src, nil).Collect(context.Background(), 24)
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCollector_SQLiteStore(t *testing.T) {
	st, err := store.NewSQLite(t.TempDir() + "/health.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	for _, s := range []model.ScrapeSessionLog{
		sess("amazon", 3*time.Hour, true, 5, ""),
		sess("amazon", 2*time.Hour, false, 0, "blocked"),
		sess("amazon", 1*time.Hour, false, 0, "blocked"),
	} {
		s.ID = s.CompletedAt.Format(time.RFC3339)
		require.NoError(t, st.RecordSession(ctx, s))
	}

	snap, err := newTestCollector(st, nil, "amazon").Collect(ctx, 24)
	require.NoError(t, err)
	require.Len(t, snap.Retailers, 1)
	assert.Equal(t, 3, snap.Retailers[0].Runs)
	assert.Equal(t, 2, snap.Retailers[0].ConsecutiveFailures)
	assert.Equal(t, now.Add(-3*time.Hour), snap.LastSuccessfulRun)
}
