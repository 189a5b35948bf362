package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

const minimalDescriptor = `services:
  backend:
    image: node:20-alpine
    expose:
      - "3001"
`

type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitCode) ExitCode() int { return int(e) }

type fakeRunner struct {
	output []byte
	err    error
	block  bool

	dir  string
	name string
	args []string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.dir, f.name, f.args = dir, name, args
	if f.block {
		<-ctx.Done()
		return f.output, errors.New("signal: killed")
	}
	return f.output, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func writeDescriptor(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "docker-compose.yml"), []byte(minimalDescriptor), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return root
}

func TestClassify(t *testing.T) {
	cases := []struct {
		output string
		want   FailureClass
	}{
		{"Error response from daemon: driver failed programming external connectivity: Bind for 0.0.0.0:8080 failed: port is already allocated", PortConflict},
		{"listen tcp 0.0.0.0:80: bind: address already in use", PortConflict},
		{"Error: ports are not available: exposing port TCP 0.0.0.0:8080", PortConflict},
		{"Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?", EngineNotRunning},
		{"error during connect: Get \"http://%2F%2F.%2Fpipe%2Fdocker_engine/v1.24/version\"", EngineNotRunning},
		{`exec: "gunicorn": executable file not found in $PATH`, MissingRuntimeDependency},
		{"sh: nodemon: not found", MissingRuntimeDependency},
		{"/bin/sh: 1: flask: command not found", MissingRuntimeDependency},
		{"failed to solve: process \"/bin/sh -c npm install\" did not complete successfully: exit code: 1", Generic},
		{"", Generic},
	}
	for _, tc := range cases {
		if got := Classify(tc.output); got != tc.want {
			t.Fatalf("Classify(%q)=%s want %s", tc.output, got, tc.want)
		}
	}
}

func TestClassifyOrder(t *testing.T) {
	out := "port is already allocated\nCannot connect to the Docker daemon"
	if got := Classify(out); got != PortConflict {
		t.Fatalf("Classify=%s want PortConflict", got)
	}
}

func TestNewParsesCommand(t *testing.T) {
	o, err := New(Options{Command: `podman-compose --podman-path "/opt/my tools/podman"`, Timeout: time.Minute, Log: logr.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := o.Args("shop")
	want := []string{"--podman-path", "/opt/my tools/podman", "-f", "docker-compose.yml", "-p", "shop", "up", "--build", "-d"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Args=%q want %q", got, want)
	}
	if o.argv[0] != "podman-compose" {
		t.Fatalf("argv[0]=%q", o.argv[0])
	}

	if _, err := New(Options{Command: `docker "compose`, Timeout: time.Minute}); err == nil {
		t.Fatalf("expected error for unbalanced quote")
	}
	if _, err := New(Options{Timeout: 0}); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}

func TestDeploySuccess(t *testing.T) {
	root := writeDescriptor(t)
	runner := &fakeRunner{output: []byte("Container shop-backend-1 Started\n")}
	o, err := New(Options{Timeout: time.Minute, Runner: runner, Pinger: fakePinger{}, Log: logr.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := o.Deploy(context.Background(), root, "shop")
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !out.Succeeded || !strings.Contains(out.RawOutput, "Started") {
		t.Fatalf("outcome=%+v", out)
	}
	if runner.dir != root || runner.name != "docker" {
		t.Fatalf("runner invoked with dir=%q name=%q", runner.dir, runner.name)
	}
	if strings.Join(runner.args, " ") != "compose -f docker-compose.yml -p shop up --build -d" {
		t.Fatalf("args=%q", runner.args)
	}
}

func TestDeployClassifiesFailure(t *testing.T) {
	root := writeDescriptor(t)
	runner := &fakeRunner{output: []byte("Bind for 0.0.0.0:8080 failed: port is already allocated\n"), err: exitCode(1)}
	o, err := New(Options{Timeout: time.Minute, Runner: runner, Log: logr.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := o.Deploy(context.Background(), root, "shop")
	var deployErr *BuildDeployError
	if !errors.As(err, &deployErr) {
		t.Fatalf("expected BuildDeployError, got %v", err)
	}
	if out.Succeeded || out.Kind != PortConflict || deployErr.Outcome.Kind != PortConflict {
		t.Fatalf("outcome=%+v", out)
	}
	if !strings.Contains(deployErr.Error(), "port is already allocated") {
		t.Fatalf("error should carry the raw output: %v", deployErr)
	}
}

func TestDeployEngineNotStartable(t *testing.T) {
	root := writeDescriptor(t)
	runner := &fakeRunner{err: errors.New(`exec: "docker": executable file not found in $PATH`)}
	o, err := New(Options{Timeout: time.Minute, Runner: runner, Log: logr.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := o.Deploy(context.Background(), root, "shop")
	if err == nil || out.Kind != EngineNotRunning {
		t.Fatalf("outcome=%+v err=%v", out, err)
	}
}

func TestDeployPingFailure(t *testing.T) {
	root := writeDescriptor(t)
	runner := &fakeRunner{}
	o, err := New(Options{Timeout: time.Minute, Runner: runner, Pinger: fakePinger{err: errors.New("connection refused")}, Log: logr.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := o.Deploy(context.Background(), root, "shop")
	var deployErr *BuildDeployError
	if !errors.As(err, &deployErr) || out.Kind != EngineNotRunning {
		t.Fatalf("outcome=%+v err=%v", out, err)
	}
	if runner.name != "" {
		t.Fatalf("engine should not run when the daemon is unreachable")
	}
}

func TestDeployTimeout(t *testing.T) {
	root := writeDescriptor(t)
	runner := &fakeRunner{block: true, output: []byte("#5 building...\n")}
	o, err := New(Options{Timeout: 20 * time.Millisecond, Runner: runner, Log: logr.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = o.Deploy(context.Background(), root, "shop")
	var timeoutErr *BuildTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected BuildTimeoutError, got %v", err)
	}
	if timeoutErr.Timeout != 20*time.Millisecond || !strings.Contains(timeoutErr.RawOutput, "building") {
		t.Fatalf("timeout error=%+v", timeoutErr)
	}
}

func TestDeployRejectsMissingDescriptor(t *testing.T) {
	runner := &fakeRunner{}
	o, err := New(Options{Timeout: time.Minute, Runner: runner, Log: logr.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Deploy(context.Background(), t.TempDir(), "shop"); err == nil {
		t.Fatalf("expected preflight error")
	}
	if runner.name != "" {
		t.Fatalf("engine should not run without a descriptor")
	}
}

func TestLoadDescriptor(t *testing.T) {
	root := writeDescriptor(t)
	project, err := LoadDescriptor(context.Background(), root, "shop")
	if err != nil {
		t.Fatalf("LoadDescriptor: %v", err)
	}
	if project.Name != "shop" {
		t.Fatalf("project name=%q", project.Name)
	}
	if _, err := project.GetService("backend"); err != nil {
		t.Fatalf("GetService: %v", err)
	}
}
