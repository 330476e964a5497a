package main

import (
	"github.com/spf13/cobra"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yaml"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scenariobot",
		Short:         "Scenario state-machine chatbot",
		Long:          "scenariobot drives conversations through operator-defined dialogue states over Telegram and a JSON API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default $"+configEnvVar+" or "+defaultConfigPath+")")

	root.AddCommand(
		newRunCmd(),
		newMigrateCmd(),
		newValidateCmd(),
		newChatCmd(),
		newVersionCmd(),
	)
	return root
}
