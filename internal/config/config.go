// File: internal/config/config.go
// Brief: Runtime options shared by the deploy, render, and serve commands.

// Package config defines the flag plumbing and runtime options shared by
// repodeploy's commands, translating Cobra/Viper flag values into a strongly
// typed struct that the pipeline consumes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/example/repodeploy/internal/engine"
)

const (
	DefaultWorkspace      = "~/.repodeploy/runs"
	DefaultStatePath      = "~/.repodeploy/state.sqlite"
	DefaultBuildTimeout   = 15 * time.Minute
	DefaultProbeAttempts  = 50
	DefaultProbeInterval  = 4 * time.Second
	DefaultProbeRequest   = 3 * time.Second
	DefaultProxyPort      = 8080
	DefaultListenAddr     = ":5000"
	DefaultRecentRunLimit = 20
)

// Options holds the pipeline configuration.
type Options struct {
	Workspace           string
	EngineCommand       string
	BuildTimeout        time.Duration
	ProbeAttempts       int
	ProbeInterval       time.Duration
	ProbeRequestTimeout time.Duration
	ProxyPort           int
	EventDelay          time.Duration
	StatePath           string
	Preflight           bool
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		Workspace:           DefaultWorkspace,
		EngineCommand:       engine.DefaultCommand,
		BuildTimeout:        DefaultBuildTimeout,
		ProbeAttempts:       DefaultProbeAttempts,
		ProbeInterval:       DefaultProbeInterval,
		ProbeRequestTimeout: DefaultProbeRequest,
		ProxyPort:           DefaultProxyPort,
		StatePath:           DefaultStatePath,
		Preflight:           true,
	}
}

// AddFlags binds configuration flags to the provided Cobra command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.BindFlags(cmd.Flags())
}

// BindFlags attaches pipeline flags to an arbitrary FlagSet and returns the flag names for further customization.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVar(&o.Workspace, "workspace", o.Workspace, "Directory that holds one working directory per run")
	names = append(names, "workspace")
	fs.StringVar(&o.EngineCommand, "engine", o.EngineCommand, "Container engine command used to build and launch the stack")
	names = append(names, "engine")
	fs.DurationVar(&o.BuildTimeout, "build-timeout", o.BuildTimeout, "Upper bound for the build-and-launch step")
	names = append(names, "build-timeout")
	fs.IntVar(&o.ProbeAttempts, "probe-attempts", o.ProbeAttempts, "Readiness checks before giving up")
	names = append(names, "probe-attempts")
	fs.DurationVar(&o.ProbeInterval, "probe-interval", o.ProbeInterval, "Delay between readiness checks")
	names = append(names, "probe-interval")
	fs.DurationVar(&o.ProbeRequestTimeout, "probe-request-timeout", o.ProbeRequestTimeout, "Timeout of a single readiness check")
	names = append(names, "probe-request-timeout")
	fs.IntVar(&o.ProxyPort, "proxy-port", o.ProxyPort, "Host port published by the reverse proxy")
	names = append(names, "proxy-port")
	fs.DurationVar(&o.EventDelay, "event-delay", o.EventDelay, "Pacing delay applied to informative progress events")
	names = append(names, "event-delay")
	fs.StringVar(&o.StatePath, "state", o.StatePath, "SQLite run ledger path (empty disables recording)")
	names = append(names, "state")
	fs.BoolVar(&o.Preflight, "preflight", o.Preflight, "Ping the container engine daemon before building")
	names = append(names, "preflight")
	return names
}

// Validate rejects unusable values and expands ~ in paths.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Workspace) == "" {
		return fmt.Errorf("--workspace is required")
	}
	workspace, err := homedir.Expand(strings.TrimSpace(o.Workspace))
	if err != nil {
		return fmt.Errorf("expand --workspace: %w", err)
	}
	o.Workspace = workspace
	if state := strings.TrimSpace(o.StatePath); state != "" {
		expanded, err := homedir.Expand(state)
		if err != nil {
			return fmt.Errorf("expand --state: %w", err)
		}
		o.StatePath = expanded
	} else {
		o.StatePath = ""
	}
	if strings.TrimSpace(o.EngineCommand) == "" {
		o.EngineCommand = engine.DefaultCommand
	}
	switch {
	case o.BuildTimeout <= 0:
		return fmt.Errorf("--build-timeout must be positive, got %s", o.BuildTimeout)
	case o.ProbeAttempts <= 0:
		return fmt.Errorf("--probe-attempts must be positive, got %d", o.ProbeAttempts)
	case o.ProbeInterval <= 0:
		return fmt.Errorf("--probe-interval must be positive, got %s", o.ProbeInterval)
	case o.ProbeRequestTimeout <= 0:
		return fmt.Errorf("--probe-request-timeout must be positive, got %s", o.ProbeRequestTimeout)
	case o.EventDelay < 0:
		return fmt.Errorf("--event-delay must not be negative, got %s", o.EventDelay)
	case o.ProxyPort < 1 || o.ProxyPort > 65535:
		return fmt.Errorf("--proxy-port must be between 1 and 65535, got %d", o.ProxyPort)
	}
	return nil
}
