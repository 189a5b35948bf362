package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/repodeploy/internal/pipeline"
)

func newDetectCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "detect [path]",
		Short: "Print the tiers and technologies detected in a local checkout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			l, profile, err := pipeline.Inspect(abs)
			if l.Root == "" {
				return err
			}
			if printErr := printInspection(cmd.OutOrStdout(), newInspection(l, profile, err), output); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json, or yaml")
	decorateCommandHelp(cmd, "Detect Flags")
	return cmd
}
