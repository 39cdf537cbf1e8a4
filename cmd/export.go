package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to CSV or Excel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return eris.New("--out is required")
		}
		format := export.FormatFromPath(out)
		if name, _ := cmd.Flags().GetString("format"); name != "" {
			f, err := export.ParseFormat(name)
			if err != nil {
				return err
			}
			format = f
		}

		env, err := initCatalog(ctx, "read")
		if err != nil {
			return err
		}
		defer env.Close()

		filter, sort := listingQuery(cmd)
		listings, err := env.Catalog.GetAllListings(ctx, filter, sort)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		if err := export.WriteFile(out, format, listings); err != nil {
			return err
		}
		zap.L().Info("catalog exported",
			zap.String("path", out),
			zap.String("format", string(format)),
			zap.Int("listings", len(listings)),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d listings to %s\n", len(listings), out)
		return nil
	},
}

func init() {
	addListingFlags(exportCmd)
	exportCmd.Flags().String("format", "", "csv or xlsx (default from --out extension)")
	exportCmd.Flags().String("out", "", "output file path")
	rootCmd.AddCommand(exportCmd)
}
