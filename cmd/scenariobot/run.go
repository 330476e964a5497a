package main

import (
	"context"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/scenariobot/core/cmd"
	"github.com/m3rciful/scenariobot/internal/app"
)

func runnerOptions(cmd *cobra.Command) corecmd.Options {
	path, _ := cmd.Flags().GetString("config")
	return corecmd.Options{
		ConfigPath:        path,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: defaultConfigPath,
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Migrate, seed and serve the bot over Telegram and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := runnerOptions(cmd)
			opts.LoadConfig = func(path string) (corecmd.ConfigCarrier, error) {
				return app.LoadConfig(path)
			}
			opts.Bootstrap = func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
				return app.Bootstrap(ctx, cfg.(*app.Config))
			}
			return corecmd.Run(cmd.Context(), opts)
		},
	}
}
