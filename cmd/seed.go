package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diaperwatch/diaperwatch-cli/internal/catalog"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load a fixture catalog into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fx, err := catalog.LoadFixture(args[0])
		if err != nil {
			return err
		}

		env, err := initCatalog(ctx, "read")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Catalog.Seed(ctx, fx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d listings and %d history rows from %s\n",
			sum.Listings, sum.History, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
