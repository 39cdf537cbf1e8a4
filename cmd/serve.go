package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/catalog"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
	"github.com/diaperwatch/diaperwatch-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP and keep it fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCatalog(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Breakers, env.Retailers)
		alerter := monitoring.NewAlerter(cfg.Monitoring, cfg.Scrape.StaleAfter())
		if cfg.Monitoring.WebhookURL != "" {
			go monitoring.NewChecker(collector, alerter, cfg.Monitoring).Run(ctx)
		}

		params := cfg.Scrape.SearchParams()
		go refreshLoop(ctx, env.Catalog, cfg.Scrape.CheckInterval(), params)

		api := &apiServer{
			ctx:      ctx,
			catalog:  env.Catalog,
			params:   params,
			status:   collector,
			lookback: cfg.Monitoring.LookbackWindowHours,
		}
		router := buildRouter(api, cfg.Server.CORSOrigins)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// statusSource produces the health snapshot served at /api/status.
type statusSource interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// apiServer holds the handlers' dependencies. ctx outlives requests and
// bounds background scrape jobs.
type apiServer struct {
	ctx      context.Context
	catalog  *catalog.Service
	params   model.SearchParams
	status   statusSource // may be nil
	lookback int
}

// buildRouter mounts the API routes behind CORS and panic recovery.
func buildRouter(api *apiServer, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", api.handleListings)
		r.Get("/brands", api.handleDistinct("brands", api.catalog.DistinctBrands))
		r.Get("/sizes", api.handleDistinct("sizes", api.catalog.DistinctSizes))
		r.Get("/retailers", api.handleDistinct("retailers", api.catalog.DistinctRetailers))
		r.Get("/listings/{id}/history", api.handleHistory)
		r.Post("/scrape", api.handleScrape)
		r.Get("/status", api.handleStatus)
	})
	return r
}

func (a *apiServer) handleListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ListingFilter{
		Brand:    q.Get("brand"),
		Size:     q.Get("size"),
		Retailer: q.Get("retailer"),
	}
	sort := model.ListingSort{
		Field: model.ParseSortField(q.Get("sort")),
		Desc:  q.Get("order") == "desc",
	}

	listings, err := a.catalog.ListingsWithRefresh(r.Context(), a.ctx, filter, sort, a.params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if listings == nil {
		listings = []model.ProductListing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(listings),
		"listings": listings,
	})
}

func (a *apiServer) handleDistinct(key string, fn func(context.Context) ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := fn(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if values == nil {
			values = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{key: values})
	}
}

func (a *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, eris.New("invalid listing id"))
		return
	}
	entries, err := a.catalog.History(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []model.PriceHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing_id": id, "history": entries})
}

func (a *apiServer) handleScrape(w http.ResponseWriter, _ *http.Request) {
	if a.catalog.Running() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "running"})
		return
	}

	go func() {
		summary, err := a.catalog.RunScrapingJob(a.ctx, a.params)
		if err != nil {
			if errors.Is(err, catalog.ErrJobRunning) {
				return
			}
			zap.L().Error("api: scrape job failed", zap.Error(err))
			return
		}
		zap.L().Info("api: scrape job complete",
			zap.Int("found", summary.Found),
			zap.Int("stored", summary.Stored),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (a *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if a.status == nil {
		writeError(w, http.StatusServiceUnavailable, eris.New("monitoring is not configured"))
		return
	}
	snap, err := a.status.Collect(r.Context(), a.lookback)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	zap.L().Warn("api: request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// refreshLoop re-runs the scrape job whenever the catalog goes stale. It
// checks once at startup and then every interval until ctx is cancelled.
func refreshLoop(ctx context.Context, svc *catalog.Service, interval time.Duration, params model.SearchParams) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	log := zap.L().With(zap.String("component", "catalog.refresher"))

	check := func() {
		ran, err := svc.RefreshIfStale(ctx, params)
		if err != nil {
			log.Warn("refresh failed", zap.Error(err))
			return
		}
		if ran {
			log.Info("catalog refreshed")
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h on port until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
