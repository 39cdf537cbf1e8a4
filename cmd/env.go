package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/browser"
	"github.com/diaperwatch/diaperwatch-cli/internal/catalog"
	"github.com/diaperwatch/diaperwatch-cli/internal/config"
	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
	"github.com/diaperwatch/diaperwatch-cli/internal/resilience"
	"github.com/diaperwatch/diaperwatch-cli/internal/retailer"
	"github.com/diaperwatch/diaperwatch-cli/internal/scrape"
	"github.com/diaperwatch/diaperwatch-cli/internal/store"
)

// catalogEnv holds the store, the scrape machinery and the catalog service
// used by every command that touches listings.
type catalogEnv struct {
	Store     store.Store
	Catalog   *catalog.Service
	Breakers  *resilience.RetailerBreakers // nil when circuit.enabled is false
	Retailers []string

	renderer *browser.RodRenderer
}

// Close releases resources held by the environment.
func (e *catalogEnv) Close() {
	if e.renderer != nil {
		_ = e.renderer.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" && strings.HasPrefix(strings.ToLower(cfg.Store.Driver), "sqlite") {
		dsn = "diaperwatch.db"
	}
	return store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: dsn,
		Pool: &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
}

// initCatalog validates cfg for mode, opens and migrates the store, and wires
// the orchestrator and catalog service. Callers should defer env.Close().
func initCatalog(ctx context.Context, mode string) (*catalogEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &catalogEnv{Store: st}

	var fx *catalog.Fixture
	if cfg.Scrape.FixturePath != "" {
		fx, err = catalog.LoadFixture(cfg.Scrape.FixturePath)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	var runner catalog.Runner
	if mode != "read" {
		runner = env.buildOrchestrator(cfg)
	}

	env.Catalog = catalog.NewService(st, runner, catalog.Options{
		StaleAfter: cfg.Scrape.StaleAfter(),
		Fixture:    fx,
	})
	return env, nil
}

// buildOrchestrator wires fetcher, optional browser, adapters and breakers
// from configuration.
func (e *catalogEnv) buildOrchestrator(c *config.Config) *scrape.Orchestrator {
	fopts := fetcher.Options{
		Timeout:           time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		Retry:             resilience.FromFetchConfig(c.Fetch.MaxAttempts, c.Fetch.BaseDelayMs, c.Fetch.MaxDelayMs, c.Fetch.JitterMs),
		MinBodyBytes:      c.Fetch.MinBodyBytes,
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		Burst:             c.Fetch.Burst,
	}
	f := fetcher.NewHTTPFetcher(fopts)

	ropts := retailer.Options{Delay: c.Scrape.Delay()}
	if c.Browser.Enabled {
		e.renderer = browser.NewRodRenderer(browser.RodOptions{
			BinPath:       c.Browser.BinPath,
			Headless:      c.Browser.Headless,
			PageTimeout:   time.Duration(c.Browser.PageTimeoutSecs) * time.Second,
			ScreenshotDir: c.Browser.ScreenshotDir,
			ProxyURL:      c.Browser.ProxyURL,
		})
		ropts.Renderer = e.renderer
	}

	adapters := retailer.Default(f, ropts).Enabled(c.Scrape.Retailers)
	e.Retailers = make([]string, 0, len(adapters))
	for _, a := range adapters {
		e.Retailers = append(e.Retailers, a.Name())
	}

	opts := []scrape.Option{
		scrape.WithRecorder(e.Store),
		scrape.WithDeadline(c.Scrape.JobDeadline()),
	}
	if c.Circuit.Enabled {
		e.Breakers = resilience.NewRetailerBreakers(resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutMins))
		opts = append(opts, scrape.WithBreakers(e.Breakers))
	}

	zap.L().Debug("scrape: orchestrator ready",
		zap.Strings("retailers", e.Retailers),
		zap.Bool("browser", c.Browser.Enabled),
		zap.Bool("circuit", c.Circuit.Enabled),
	)
	return scrape.New(adapters, opts...)
}
