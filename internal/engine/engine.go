// Package engine drives the container engine's build-and-launch operation
// against a synthesized run directory and classifies its failures.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/go-logr/logr"
	"github.com/mattn/go-shellwords"
)

// DefaultCommand is the engine invocation used when none is configured.
const DefaultCommand = "docker compose"

// Outcome is the result of one build-and-launch attempt.
type Outcome struct {
	Succeeded bool
	Kind      FailureClass
	RawOutput string
}

// BuildDeployError carries a classified engine failure.
type BuildDeployError struct {
	Outcome Outcome
	Err     error
}

func (e *BuildDeployError) Error() string {
	msg := fmt.Sprintf("build and launch failed (%s)", e.Outcome.Kind)
	if detail := lastLines(e.Outcome.RawOutput, 3); detail != "" {
		msg += ": " + detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BuildDeployError) Unwrap() error { return e.Err }

// BuildTimeoutError is returned when the engine does not finish within the
// configured bound.
type BuildTimeoutError struct {
	Timeout   time.Duration
	RawOutput string
}

func (e *BuildTimeoutError) Error() string {
	return fmt.Sprintf("build and launch did not finish within %s", e.Timeout)
}

// CommandRunner executes name with args in dir and returns combined output.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Pinger checks that the engine daemon is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure an Orchestrator.
type Options struct {
	// Command is the engine invocation, split with shell quoting rules.
	Command string
	// Timeout bounds the whole build-and-launch call.
	Timeout time.Duration
	Runner  CommandRunner
	// Pinger is optional; when set the daemon is pinged before launching.
	Pinger Pinger
	Log    logr.Logger
}

// Orchestrator runs the engine against a run directory.
type Orchestrator struct {
	argv    []string
	timeout time.Duration
	runner  CommandRunner
	pinger  Pinger
	log     logr.Logger
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	command := strings.TrimSpace(opts.Command)
	if command == "" {
		command = DefaultCommand
	}
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("engine timeout must be positive")
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Orchestrator{argv: argv, timeout: opts.Timeout, runner: runner, pinger: opts.Pinger, log: opts.Log}, nil
}

// Args returns the full argument vector used to launch project in the
// current directory.
func (o *Orchestrator) Args(project string) []string {
	args := append([]string{}, o.argv[1:]...)
	return append(args, "-f", "docker-compose.yml", "-p", project, "up", "--build", "-d")
}

// Deploy builds and launches the descriptor in root as project. A non-nil
// error is always *BuildDeployError, *BuildTimeoutError, or a descriptor
// preflight failure.
func (o *Orchestrator) Deploy(ctx context.Context, root, project string) (Outcome, error) {
	if _, err := LoadDescriptor(ctx, root, project); err != nil {
		return Outcome{}, fmt.Errorf("descriptor preflight: %w", err)
	}
	if o.pinger != nil {
		if err := o.pinger.Ping(ctx); err != nil {
			out := Outcome{Kind: EngineNotRunning, RawOutput: err.Error()}
			return out, &BuildDeployError{Outcome: out, Err: err}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	args := o.Args(project)
	o.log.V(1).Info("running engine", "dir", root, "command", o.argv[0], "args", args)
	raw, err := o.runner.Run(runCtx, root, o.argv[0], args...)
	output := string(raw)
	if err == nil {
		return Outcome{Succeeded: true, RawOutput: output}, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return Outcome{Kind: Generic, RawOutput: output}, &BuildTimeoutError{Timeout: o.timeout, RawOutput: output}
	}
	if ctx.Err() != nil {
		return Outcome{Kind: Generic, RawOutput: output}, ctx.Err()
	}
	kind := Classify(output)
	if !isExitStatus(err) {
		// The engine executable could not be started at all.
		kind = EngineNotRunning
		if output == "" {
			output = err.Error()
		}
	}
	out := Outcome{Kind: kind, RawOutput: output}
	return out, &BuildDeployError{Outcome: out, Err: err}
}

// exitStatusError is satisfied by *exec.ExitError and by fake runners that
// report a non-zero exit without a real process.
type exitStatusError interface {
	ExitCode() int
}

func isExitStatus(err error) bool {
	var e exitStatusError
	return errors.As(err, &e)
}

// LoadDescriptor parses the descriptor written in root the same way the
// engine will, so malformed output is caught before launching anything.
func LoadDescriptor(ctx context.Context, root, project string) (*types.Project, error) {
	path := filepath.Join(root, "docker-compose.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	details := types.ConfigDetails{
		WorkingDir:  root,
		ConfigFiles: []types.ConfigFile{{Filename: path, Content: data}},
		Environment: types.Mapping{},
	}
	return loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(project, true)
	})
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
