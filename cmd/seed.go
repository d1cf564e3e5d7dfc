package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rowanhq/ticketflow/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo customers, products, orders, and help articles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		db, _, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		return seed.Run(cmd.Context(), db)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
