package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/repodeploy/internal/version"
)

func newVersionCommand() *cobra.Command {
	var short, asJSON bool
	cmd := &cobra.Command{
		Use:           "version",
		Short:         "Print the repodeploy version information",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			switch {
			case short:
				fmt.Fprintln(out, info.Version)
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			default:
				fmt.Fprintf(out, "Version: %s\n", info.Version)
				if info.GitCommit != "" && info.GitCommit != "unknown" {
					fmt.Fprintf(out, "GitCommit: %s\n", info.GitCommit)
				}
				if info.BuildDate != "" && info.BuildDate != "unknown" {
					fmt.Fprintf(out, "BuildDate: %s\n", info.BuildDate)
				}
				fmt.Fprintf(out, "GoVersion: %s\n", info.GoVersion)
				fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print just the version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the version information as JSON")
	decorateCommandHelp(cmd, "Version Flags")
	return cmd
}
