package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rowanhq/ticketflow/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
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

		log.Info(log.CatStore, "migrations applied", "database", cfg.DatabasePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
