// Package cli is the pickup command tree.
package cli

import (
	"fmt"
	"log/slog"

	"pickup/internal/config"
	"pickup/internal/logging"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree. Every command loads configuration
// from the environment first.
func NewRootCommand() *cobra.Command {
	var cfg config.Config
	var log *slog.Logger

	root := &cobra.Command{
		Use:           "pickup",
		Short:         "Pickup game queue scheduler",
		Long:          "pickup runs the queue admission, waitlist, inactivity and map rotation loops behind a small HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.LogLevel = lvl
			}
			log = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
			slog.SetDefault(log)
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	env := func() (config.Config, *slog.Logger) { return cfg, log }
	root.AddCommand(
		newServeCommand(env),
		newMigrateCommand(env),
		newSeedCommand(env),
		newTokenCommand(env),
	)
	return root
}

type envFunc func() (config.Config, *slog.Logger)
