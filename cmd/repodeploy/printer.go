package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/example/repodeploy/internal/detect"
	"github.com/example/repodeploy/internal/layout"
	"github.com/example/repodeploy/internal/pipeline"
	"github.com/example/repodeploy/internal/runstore"
)

func printDeployResult(cmd *cobra.Command, res pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s %s\n", color.New(color.Bold).Sprint("Endpoint:"), color.New(color.FgGreen).Sprint(res.URL))
	fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("Run dir: "), res.RunDir)
	fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("Run ID:  "), res.RunID)
}

// inspection is the printable form of a detected repository.
type inspection struct {
	Root    string              `json:"root"`
	Tiers   map[string]string   `json:"tiers"`
	Profile detect.StackProfile `json:"profile"`
	Error   string              `json:"error,omitempty"`
}

func newInspection(l layout.RepoLayout, profile detect.StackProfile, err error) inspection {
	in := inspection{Root: l.Root, Tiers: map[string]string{}, Profile: profile}
	for _, role := range layout.Roles {
		if dir := l.Dir(role); dir != "" {
			in.Tiers[string(role)] = dir
		}
	}
	if err != nil {
		in.Error = err.Error()
	}
	return in
}

func printInspection(w io.Writer, in inspection, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIER\tDIRECTORY\tTECHNOLOGY")
		fmt.Fprintf(tw, "%s\t%s\t%s\n", layout.Presentation, in.Tiers[string(layout.Presentation)], in.Profile.Presentation)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", layout.Service, in.Tiers[string(layout.Service)], in.Profile.Service)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", layout.Data, in.Tiers[string(layout.Data)], in.Profile.Data)
		if err := tw.Flush(); err != nil {
			return err
		}
		entry := in.Profile.EntryFile
		if entry == "" {
			entry = color.New(color.FgYellow).Sprint("not found")
		}
		port := fmt.Sprintf("%d", in.Profile.Port)
		if !in.Profile.HasPort() {
			port = color.New(color.FgYellow).Sprint("not found")
		}
		fmt.Fprintf(w, "\nEntry file: %s\nPort:       %s\n", entry, port)
		if in.Error != "" {
			fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed).Sprint("Not deployable:"), in.Error)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(in)
	case "yaml":
		data, err := yaml.Marshal(in)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown --output %q (expected table|json|yaml)", format)
	}
}

func printRunsTable(w io.Writer, runs []runstore.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "RUN\tSTATE\tKIND\tREPOSITORY\tENDPOINT\tCREATED")
	for _, r := range runs {
		kind := r.FailureKind
		if kind == "" {
			kind = "-"
		}
		endpoint := r.Endpoint
		if endpoint == "" {
			endpoint = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			strings.ToUpper(r.State),
			kind,
			r.RepoURL,
			endpoint,
			r.CreatedAt.Local().Format(time.DateTime),
		)
	}
	return nil
}
