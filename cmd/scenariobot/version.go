package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/m3rciful/scenariobot/core/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scenariobot %s %s\n", buildinfo.Short(), runtime.Version())
		},
	}
}
