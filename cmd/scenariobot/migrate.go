package main

import (
	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/scenariobot/core/cmd"
	coredatabase "github.com/m3rciful/scenariobot/core/database"
	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/internal/app"
	"github.com/m3rciful/scenariobot/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := corecmd.ResolveConfigPath(runnerOptions(cmd))
			if err != nil {
				return err
			}
			cfg, err := app.LoadMigrationConfig(path)
			if err != nil {
				return err
			}
			if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			return coredatabase.RunMigrations(cmd.Context(), cfg.Database, migrations.FS)
		},
	}
}
