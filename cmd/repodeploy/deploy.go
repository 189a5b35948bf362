// File: cmd/repodeploy/deploy.go
// Brief: `repodeploy deploy` command wiring.

package main

import (
	"github.com/spf13/cobra"

	"github.com/example/repodeploy/internal/config"
	"github.com/example/repodeploy/internal/logging"
	"github.com/example/repodeploy/internal/notify"
	"github.com/example/repodeploy/internal/pipeline"
	"github.com/example/repodeploy/internal/ui"
)

func newDeployCommand(opts *config.Options, logLevel *string) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "deploy <repository-url>",
		Short: "Clone, detect, build, launch, and wait for a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(*logLevel, logging.WithWriter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			rt, err := newRuntime(opts, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			width, _ := ui.TerminalWidth(out)
			console := ui.NewProgressConsole(out, ui.ProgressConsoleOptions{
				Spinner: ui.IsTerminal(out),
				Quiet:   quiet,
				Width:   width,
			})
			res := rt.controller.Run(cmd.Context(), pipeline.Request{
				RepoURL: args[0],
				Sinks:   []notify.Sink{console},
			})
			console.Summary()
			if res.Err != nil {
				return res.Err
			}
			printDeployResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print state transitions")
	decorateCommandHelp(cmd, "Deploy Flags")
	return cmd
}
