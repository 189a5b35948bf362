// File: cmd/repodeploy/runs.go
// Brief: `repodeploy runs` command wiring.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/repodeploy/internal/config"
	"github.com/example/repodeploy/internal/runstore"
)

func newRunsCommand(opts *config.Options) *cobra.Command {
	var (
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs from the sqlite run ledger, or show one with its events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			if opts.StatePath == "" {
				return errors.New("the run ledger is disabled (--state is empty)")
			}
			store, err := runstore.Open(opts.StatePath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			format := strings.ToLower(strings.TrimSpace(output))
			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				events, err := store.Events(ctx, args[0])
				if err != nil {
					return err
				}
				if format == "json" {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{"run": run, "events": events})
				}
				if err := printRunsTable(cmd.OutOrStdout(), []runstore.Run{*run}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout())
				for _, ev := range events {
					fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s  %-6s %s\n", ev.Seq, ev.Time.Local().Format("15:04:05"), ev.Type, ev.Message)
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			switch format {
			case "", "table":
				return printRunsTable(cmd.OutOrStdout(), runs)
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			default:
				return fmt.Errorf("unknown --output %q (expected table|json)", output)
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", config.DefaultRecentRunLimit, "Maximum number of runs to list (newest first)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	decorateCommandHelp(cmd, "Runs Flags")
	return cmd
}
