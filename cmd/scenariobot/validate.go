package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m3rciful/scenariobot/core/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.json>",
		Short: "Check a scenario file the way uploads are checked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return validateScenario(cmd.OutOrStdout(), data)
		},
	}
}

func validateScenario(w io.Writer, data []byte) error {
	def, err := scenario.Parse(data)
	if err != nil {
		return fmt.Errorf("scenario is invalid: %w", err)
	}
	names := def.StateNames()
	fmt.Fprintf(w, "scenario is valid: %d states (%s), initial state %q\n",
		len(names), strings.Join(names, ", "), def.InitialState)
	return nil
}
