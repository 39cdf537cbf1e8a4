package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
	"github.com/diaperwatch/diaperwatch-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-retailer scrape health and catalog freshness",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initCatalog(ctx, "read")
		if err != nil {
			return err
		}
		defer env.Close()

		lookback, _ := cmd.Flags().GetInt("lookback-hours")
		if lookback <= 0 {
			lookback = cfg.Monitoring.LookbackWindowHours
		}

		collector := monitoring.NewCollector(env.Store, env.Breakers, enabledRetailers())
		snap, err := collector.Collect(ctx, lookback)
		if err != nil {
			return err
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring, cfg.Scrape.StaleAfter())
		alerts := alerter.Evaluate(snap)
		if notify, _ := cmd.Flags().GetBool("notify"); notify {
			alerter.SendAlerts(ctx, alerts)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*monitoring.MetricsSnapshot
				Alerts []monitoring.Alert `json:"alerts"`
			}{snap, alerts})
		}

		formatStatus(cmd.OutOrStdout(), snap, alerts)
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("lookback-hours", 0, "health window in hours (default from monitoring.lookback_window_hours)")
	statusCmd.Flags().Bool("json", false, "print JSON instead of a table")
	statusCmd.Flags().Bool("notify", false, "send triggered alerts to monitoring.webhook_url")
	rootCmd.AddCommand(statusCmd)
}

// enabledRetailers is the configured retailer list, or every retailer when
// none is configured.
func enabledRetailers() []string {
	if len(cfg.Scrape.Retailers) > 0 {
		return cfg.Scrape.Retailers
	}
	return model.AllRetailers()
}

// formatStatus writes the health table, catalog freshness and alerts to w.
func formatStatus(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RETAILER\tRUNS\tFAILED\tFAIL%\tSTREAK\tITEMS\tLAST RUN\tLAST ERROR")
	_, _ = fmt.Fprintln(w, "--------\t----\t------\t-----\t------\t-----\t--------\t----------")
	for _, h := range snap.Retailers {
		last := "never"
		if !h.LastRunAt.IsZero() {
			last = h.LastRunAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\t%d\t%d\t%s\t%s\n",
			h.Retailer,
			h.Runs,
			h.Failed,
			h.FailRate*100,
			h.ConsecutiveFailures,
			h.ItemsFound,
			last,
			truncate(h.LastError, 40),
		)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nListings: %d\n", snap.ListingCount)
	if snap.LastSuccessfulRun.IsZero() {
		_, _ = fmt.Fprintln(out, "Last successful run: never")
	} else {
		_, _ = fmt.Fprintf(out, "Last successful run: %s (%s ago)\n",
			snap.LastSuccessfulRun.Format("2006-01-02 15:04"),
			snap.CatalogAge().Round(time.Minute))
	}

	if len(alerts) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nAlerts:")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s\n", a.Severity, a.Message)
	}
}
