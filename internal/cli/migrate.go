package cli

import (
	"pickup/internal/logging"
	"pickup/internal/storage"

	"github.com/spf13/cobra"
)

func newMigrateCommand(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			db, err := storage.ConnectDatabase(cfg, logging.Component(log, "gorm"))
			if err != nil {
				return err
			}
			if err := storage.Migrate(db); err != nil {
				return err
			}
			log.Info("migration complete", "driver", cfg.DBDriver)
			return nil
		},
	}
}
