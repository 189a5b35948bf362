package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/repodeploy/internal/notify"
	"github.com/example/repodeploy/internal/runstore"
)

func isolateConfig(t *testing.T) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REPODEPLOY_CONFIG", cfgPath)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"client/package.json":     `{"dependencies":{"vue":"^3.4.0"}}`,
		"server/requirements.txt": "Flask==3.0.0\npsycopg2-binary==2.9.9\n",
		"server/app.py":           "from flask import Flask\napp = Flask(__name__)\nif __name__ == '__main__':\n    app.run(host='0.0.0.0', port=4000)\n",
		"db/init.sql":             "CREATE TABLE t (id int);\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestVersionCommand(t *testing.T) {
	isolateConfig(t)
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Version:") || !strings.Contains(out, "GoVersion:") {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestDetectCommandJSON(t *testing.T) {
	isolateConfig(t)
	repo := writeRepo(t)
	out, err := execute(t, "detect", repo, "-o", "json")
	if err != nil {
		t.Fatalf("execute: %v\n%s", err, out)
	}
	var got inspection
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Tiers["presentation"] != "client" || got.Tiers["service"] != "server" || got.Tiers["data"] != "db" {
		t.Fatalf("tiers=%v", got.Tiers)
	}
	if got.Profile.Port != 4000 || got.Profile.EntryFile != "app.py" || got.Profile.Data != "postgres" {
		t.Fatalf("profile=%+v", got.Profile)
	}
}

func TestDetectCommandReportsMissingTier(t *testing.T) {
	isolateConfig(t)
	repo := t.TempDir()
	if err := os.Mkdir(filepath.Join(repo, "frontend"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := execute(t, "detect", repo); err == nil || !strings.Contains(err.Error(), "missing required directories") {
		t.Fatalf("expected structure error, got %v", err)
	}
}

func TestRenderWritesThenDiffIsClean(t *testing.T) {
	isolateConfig(t)
	repo := writeRepo(t)
	out, err := execute(t, "render", repo, "--network", "net-fixed01", "--project", "demo")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "wrote docker-compose.yml") || !strings.Contains(out, "wrote server/Dockerfile") {
		t.Fatalf("unexpected render output: %q", out)
	}
	out, err = execute(t, "render", repo, "--network", "net-fixed01", "--project", "demo", "--diff")
	if err != nil {
		t.Fatalf("render --diff: %v", err)
	}
	if strings.TrimSpace(out) != "No changes." {
		t.Fatalf("expected clean diff, got %q", out)
	}
	out, err = execute(t, "render", repo, "--network", "net-fixed01", "--project", "demo", "--diff", "--proxy-port", "9090")
	if err != nil {
		t.Fatalf("render --diff: %v", err)
	}
	if !strings.Contains(out, "+++ b/docker-compose.yml") || !strings.Contains(out, "9090") {
		t.Fatalf("expected descriptor diff, got %q", out)
	}
}

func TestRunsCommandListsLedger(t *testing.T) {
	isolateConfig(t)
	state := filepath.Join(t.TempDir(), "state.sqlite")
	store, err := runstore.Open(state)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := store.CreateRun(ctx, runstore.Run{ID: "run-1", RepoURL: "https://github.com/acme/shop", State: "Idle"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := store.AppendEvent(ctx, notify.Event{RunID: "run-1", Seq: 1, Type: notify.EventReady, State: "Ready", URL: "http://localhost:8080", Message: "ready"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	_ = store.Close()

	out, err := execute(t, "runs", "--state", state, "--workspace", t.TempDir())
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "run-1") || !strings.Contains(out, "READY") || !strings.Contains(out, "http://localhost:8080") {
		t.Fatalf("unexpected runs output: %q", out)
	}
	out, err = execute(t, "runs", "run-1", "--state", state, "--workspace", t.TempDir(), "-o", "json")
	if err != nil {
		t.Fatalf("runs run-1: %v", err)
	}
	if !strings.Contains(out, `"events"`) || !strings.Contains(out, `"runId": "run-1"`) {
		t.Fatalf("unexpected run detail: %q", out)
	}
}

func TestHelpShowsSections(t *testing.T) {
	isolateConfig(t)
	out, err := execute(t, "deploy", "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, want := range []string{"Usage:", "Deploy Flags:", "--quiet", "Global Flags:", "--proxy-port"} {
		if !strings.Contains(out, want) {
			t.Fatalf("help missing %q:\n%s", want, out)
		}
	}
}
