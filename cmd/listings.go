package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Show in-stock listings, cheapest per diaper first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initCatalog(ctx, "read")
		if err != nil {
			return err
		}
		defer env.Close()

		filter, sort := listingQuery(cmd)
		listings, err := env.Catalog.GetAllListings(ctx, filter, sort)
		if err != nil {
			return eris.Wrap(err, "listings")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(listings)
		}

		if len(listings) == 0 {
			fmt.Fprintln(os.Stderr, "No listings found.")
			return nil
		}
		formatListings(cmd.OutOrStdout(), listings)
		return nil
	},
}

// listingQuery reads the shared filter and sort flags.
func listingQuery(cmd *cobra.Command) (model.ListingFilter, model.ListingSort) {
	brand, _ := cmd.Flags().GetString("brand")
	size, _ := cmd.Flags().GetString("size")
	ret, _ := cmd.Flags().GetString("retailer")
	sortBy, _ := cmd.Flags().GetString("sort")
	desc, _ := cmd.Flags().GetBool("desc")
	return model.ListingFilter{Brand: brand, Size: size, Retailer: ret},
		model.ListingSort{Field: model.ParseSortField(sortBy), Desc: desc}
}

func addListingFlags(cmd *cobra.Command) {
	cmd.Flags().String("brand", "", "filter by brand (\"all\" for any)")
	cmd.Flags().String("size", "", "filter by size")
	cmd.Flags().String("retailer", "", "filter by retailer")
	cmd.Flags().String("sort", string(model.SortPricePerUnit), "sort by price_per_unit, total_price, brand or updated_at")
	cmd.Flags().Bool("desc", false, "sort descending")
}

// -- values --

var valuesCmd = &cobra.Command{
	Use:   "values <brands|sizes|retailers>",
	Short: "List the distinct brands, sizes or retailers in the catalog",
	Args:  cobra.ExactArgs(1),
	ValidArgs: []string{
		"brands", "sizes", "retailers",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initCatalog(ctx, "read")
		if err != nil {
			return err
		}
		defer env.Close()

		var values []string
		switch args[0] {
		case "brands":
			values, err = env.Catalog.DistinctBrands(ctx)
		case "sizes":
			values, err = env.Catalog.DistinctSizes(ctx)
		case "retailers":
			values, err = env.Catalog.DistinctRetailers(ctx)
		default:
			return eris.Errorf("unknown value set %q (want brands, sizes or retailers)", args[0])
		}
		if err != nil {
			return eris.Wrap(err, "values")
		}
		for _, v := range values {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

// -- history --

var historyCmd = &cobra.Command{
	Use:   "history <listing-id>",
	Short: "Show the price history of one listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return eris.Errorf("invalid listing id %q", args[0])
		}

		env, err := initCatalog(ctx, "read")
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Catalog.History(ctx, id)
		if err != nil {
			return eris.Wrap(err, "history")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No history recorded.")
			return nil
		}
		formatHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	addListingFlags(listingsCmd)
	listingsCmd.Flags().Bool("json", false, "print JSON instead of a table")

	rootCmd.AddCommand(listingsCmd)
	rootCmd.AddCommand(valuesCmd)
	rootCmd.AddCommand(historyCmd)
}

// formatListings writes a tabular list of listings to w.
func formatListings(out io.Writer, listings []model.ProductListing) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tBRAND\tTYPE\tSIZE\tCOUNT\tRETAILER\tPRICE\tPER DIAPER\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t----\t-----\t--------\t-----\t----------\t-------")
	for _, l := range listings {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t$%.2f\t$%.4f\t%s\n",
			l.ID,
			l.Brand,
			truncate(l.Type, 24),
			l.Size,
			l.Count,
			l.Retailer,
			l.Price,
			l.PricePerUnit,
			l.LastFetchedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatHistory writes price history rows to w, oldest first.
func formatHistory(out io.Writer, entries []model.PriceHistoryEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RECORDED\tPRICE\tPER DIAPER\tIN STOCK")
	_, _ = fmt.Fprintln(w, "--------\t-----\t----------\t--------")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t$%.2f\t$%.4f\t%t\n",
			e.RecordedAt.Format("2006-01-02 15:04"),
			e.Price,
			e.PricePerUnit,
			e.InStock,
		)
	}
	_ = w.Flush()
}
