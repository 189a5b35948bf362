package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/example/repodeploy/internal/notify"
	"github.com/example/repodeploy/internal/pipeline"
	"github.com/example/repodeploy/internal/runstore"
)

// gatedRunner emits one event per run, then waits for release.
type gatedRunner struct {
	mu       sync.Mutex
	requests []pipeline.Request
	started  chan string
	release  chan struct{}
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan string, 4), release: make(chan struct{})}
}

func (g *gatedRunner) Run(_ context.Context, req pipeline.Request) pipeline.Result {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	for _, sink := range req.Sinks {
		sink.Deliver(notify.Event{RunID: req.RunID, Seq: 1, Type: notify.EventState, State: "Validating", Message: "Validating repository structure"})
	}
	g.started <- req.RunID
	<-g.release
	for _, sink := range req.Sinks {
		sink.Deliver(notify.Event{RunID: req.RunID, Seq: 2, Type: notify.EventReady, State: "Ready", URL: "http://localhost:8080"})
	}
	return pipeline.Result{RunID: req.RunID, State: pipeline.Ready}
}

func postDeploy(t *testing.T, srv *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/deploy", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestDeployRejectsBadInput(t *testing.T) {
	runner := newGatedRunner()
	s := New(":0", runner, logr.Discard())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", `{"repoUrl":"  "}`, "Repository URL is required."},
		{"missing field", `{}`, "Repository URL is required."},
		{"loopback", `{"repoUrl":"http://localhost/x"}`, "localhost"},
		{"private", `{"repoUrl":"http://192.168.1.5/x"}`, "192.168.1.5"},
		{"not json", `repoUrl=x`, "JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := postDeploy(t, srv, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", resp.StatusCode, data)
			}
			var msg messageResponse
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !strings.Contains(msg.Message, tt.want) {
				t.Fatalf("message=%q want %q", msg.Message, tt.want)
			}
		})
	}
	if len(runner.requests) != 0 {
		t.Fatalf("runner should not be invoked")
	}
}

func TestDeployStreamsRunEvents(t *testing.T) {
	runner := newGatedRunner()
	s := New(":0", runner, logr.Discard())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, data := postDeploy(t, srv, `{"repoUrl":"https://github.com/acme/shop"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", resp.StatusCode, data)
	}
	var accepted deployResponse
	if err := json.Unmarshal(data, &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted.RunID == "" || accepted.Events != "/ws?run="+accepted.RunID {
		t.Fatalf("response=%+v", accepted)
	}
	select {
	case id := <-runner.started:
		if id != accepted.RunID {
			t.Fatalf("started %s want %s", id, accepted.RunID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not start")
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + accepted.Events
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	read := func() notify.Event {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev notify.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		return ev
	}
	if ev := read(); ev.State != "Validating" || ev.RunID != accepted.RunID {
		t.Fatalf("first event=%+v", ev)
	}
	close(runner.release)
	if ev := read(); ev.Type != notify.EventReady {
		t.Fatalf("second event=%+v", ev)
	}
	s.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.requests) != 1 || runner.requests[0].RepoURL != "https://github.com/acme/shop" {
		t.Fatalf("requests=%+v", runner.requests)
	}
}

func TestDeployRefusedWhileDraining(t *testing.T) {
	runner := newGatedRunner()
	s := New(":0", runner, logr.Discard())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, data := postDeploy(t, srv, `{"repoUrl":"https://github.com/acme/shop"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", resp.StatusCode, data)
	}
	<-runner.started

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, data = postDeploy(t, srv, `{"repoUrl":"https://github.com/acme/other"}`)
		if resp.StatusCode == http.StatusServiceUnavailable {
			break
		}
		if resp.StatusCode != http.StatusAccepted || time.Now().After(deadline) {
			t.Fatalf("status=%d body=%s", resp.StatusCode, data)
		}
		// Accepted before Wait marked the server draining.
		<-runner.started
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case <-done:
		t.Fatalf("Wait returned while a run was still in flight")
	default:
	}
	close(runner.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Wait did not return after runs finished")
	}
}

func TestWebsocketUnknownRun(t *testing.T) {
	s := New(":0", newGatedRunner(), logr.Discard())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/ws?run=nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	resp, err = http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestRunLookup(t *testing.T) {
	ctx := context.Background()
	store, err := runstore.Open(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if err := store.CreateRun(ctx, runstore.Run{ID: "r1", RepoURL: "https://github.com/acme/shop", State: "Idle"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := store.AppendEvent(ctx, notify.Event{RunID: "r1", Seq: 1, Type: notify.EventFailed, State: "Failed", Kind: "PortNotFound", Message: "no port"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	s := New(":0", newGatedRunner(), logr.Discard(), WithRunReader(store))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs/r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got runResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || got.Run == nil || got.Run.FailureKind != "PortNotFound" || len(got.Events) != 1 {
		t.Fatalf("status=%d run=%+v events=%+v", resp.StatusCode, got.Run, got.Events)
	}

	resp, err = http.Get(srv.URL + "/api/runs/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing run status=%d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/runs?limit=5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var runs []runstore.Run
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Fatalf("runs=%+v", runs)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := New(":0", newGatedRunner(), logr.Discard())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status=%d", path, resp.StatusCode)
		}
	}
	resp, err := http.Get(srv.URL + "/api/runs/x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ledger disabled should 404, got %d", resp.StatusCode)
	}
}
