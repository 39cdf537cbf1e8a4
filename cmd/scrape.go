package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/diaperwatch/diaperwatch-cli/internal/catalog"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape job across the enabled retailers",
	Long:  "Searches every enabled retailer for each brand x size, stores the listings, appends price history and logs one session per retailer.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyScrapeFlags(cmd)

		env, err := initCatalog(ctx, "scrape")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, runErr := env.Catalog.RunScrapingJob(ctx, cfg.Scrape.SearchParams())
		if summary != nil {
			formatJobSummary(cmd.OutOrStdout(), summary)
		}
		return runErr
	},
}

// applyScrapeFlags overrides the configured search with any flags set.
func applyScrapeFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("brand") {
		cfg.Scrape.Brands, _ = cmd.Flags().GetStringSlice("brand")
	}
	if cmd.Flags().Changed("size") {
		cfg.Scrape.Sizes, _ = cmd.Flags().GetStringSlice("size")
	}
	if cmd.Flags().Changed("retailer") {
		cfg.Scrape.Retailers, _ = cmd.Flags().GetStringSlice("retailer")
	}
	if cmd.Flags().Changed("min-products") {
		cfg.Scrape.MinProducts, _ = cmd.Flags().GetInt("min-products")
	}
}

func init() {
	scrapeCmd.Flags().StringSlice("brand", nil, "brands to search (default from config)")
	scrapeCmd.Flags().StringSlice("size", nil, "sizes to search (default from config)")
	scrapeCmd.Flags().StringSlice("retailer", nil, "retailers to scrape (default: all enabled)")
	scrapeCmd.Flags().Int("min-products", 0, "stop trying query variants once this many products are found")
	rootCmd.AddCommand(scrapeCmd)
}

// formatJobSummary writes one row per retailer session and the job totals.
func formatJobSummary(out io.Writer, s *catalog.JobSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RETAILER\tSTATUS\tITEMS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--------\t------\t-----\t--------\t-----")
	for _, sess := range s.Sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			sess.Retailer,
			sessionStatus(sess),
			sess.ItemsFound,
			sess.Duration().Round(time.Millisecond),
			truncate(sess.ErrorMessage, 60),
		)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nFound %d listings, stored %d, failed %d in %s\n",
		s.Found, s.Stored, s.Failed, s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
}

func sessionStatus(s model.ScrapeSessionLog) string {
	switch {
	case s.Success && s.ErrorMessage != "":
		return "partial"
	case s.Success:
		return "ok"
	}
	return "failed"
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
