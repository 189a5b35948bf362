// File: cmd/repodeploy/render.go
// Brief: `repodeploy render` command wiring.

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/repodeploy/internal/config"
	"github.com/example/repodeploy/internal/pipeline"
	"github.com/example/repodeploy/internal/synth"
	"github.com/example/repodeploy/internal/workspace"
)

func newRenderCommand(opts *config.Options) *cobra.Command {
	var (
		diff    bool
		network string
		project string
	)
	cmd := &cobra.Command{
		Use:   "render <path>",
		Short: "Generate build, orchestration, and proxy files for a local checkout",
		Long:  "render runs detection and synthesis against a local checkout and writes the artifacts in place, without building or launching anything. With --diff it only prints how the generated files differ from what is on disk.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ProxyPort < 1 || opts.ProxyPort > 65535 {
				return fmt.Errorf("--proxy-port must be between 1 and 65535, got %d", opts.ProxyPort)
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			l, profile, err := pipeline.Inspect(root)
			if err != nil {
				return err
			}
			if strings.TrimSpace(project) == "" {
				project = workspace.ProjectName(root)
			}
			set, err := synth.Synthesize(l, profile, synth.Options{ProjectName: project, ProxyPort: opts.ProxyPort, Network: network})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if diff {
				text, err := synth.Diff(root, set)
				if err != nil {
					return err
				}
				if text == "" {
					fmt.Fprintln(out, "No changes.")
					return nil
				}
				fmt.Fprint(out, text)
				return nil
			}
			if err := synth.Write(root, set); err != nil {
				return err
			}
			for _, p := range set.Paths() {
				fmt.Fprintf(out, "wrote %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&diff, "diff", false, "Print a unified diff against the files on disk instead of writing")
	cmd.Flags().StringVar(&network, "network", "", "Network name to use (random net-<hex> when empty)")
	cmd.Flags().StringVar(&project, "project", "", "Orchestration project name (derived from the directory when empty)")
	decorateCommandHelp(cmd, "Render Flags")
	return cmd
}
