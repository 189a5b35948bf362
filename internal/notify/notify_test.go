package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	testingclock "k8s.io/utils/clock/testing"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Deliver(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamPreservesOrderAcrossDelays(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := testingclock.NewFakeClock(start)
	sink := &collector{}
	s := NewStream("run-1", fake, sink)

	s.Emit(Event{Type: EventState, State: "Validating", Message: "a"})
	s.EmitAfter(2*time.Second, Event{Type: EventInfo, Message: "b"})
	s.Emit(Event{Type: EventInfo, Message: "c"})
	s.EmitAfter(time.Second, Event{Type: EventInfo, Message: "d"})

	waitFor(t, "first delay to start", fake.HasWaiters)
	if got := len(sink.snapshot()); got != 1 {
		t.Fatalf("an undelayed event overtook a delayed one: delivered %d", got)
	}
	fake.Step(2 * time.Second)
	waitFor(t, "second delay to start", func() bool { return len(sink.snapshot()) == 3 && fake.HasWaiters() })
	fake.Step(time.Second)
	s.Close()

	got := sink.snapshot()
	if len(got) != 4 {
		t.Fatalf("delivered %d events want 4", len(got))
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		if got[i].Message != want || got[i].Seq != i+1 || got[i].RunID != "run-1" {
			t.Fatalf("event %d = %+v", i, got[i])
		}
	}
	if !got[1].Time.Equal(start.Add(2*time.Second)) || !got[3].Time.Equal(start.Add(3*time.Second)) {
		t.Fatalf("delivery times %s %s", got[1].Time, got[3].Time)
	}
}

func TestStreamCloseDrainsAndDropsLateEvents(t *testing.T) {
	sink := &collector{}
	s := NewStream("run-2", testingclock.NewFakeClock(time.Now()), sink)
	for i := 0; i < 100; i++ {
		s.Emit(Event{Type: EventInfo, Message: "x"})
	}
	s.Close()
	if got := len(sink.snapshot()); got != 100 {
		t.Fatalf("delivered %d want 100", got)
	}
	s.Emit(Event{Type: EventInfo, Message: "late"})
	if s.Dropped() != 1 || len(sink.snapshot()) != 100 {
		t.Fatalf("late event should be dropped")
	}
}

func TestStreamFansOutToAllSinks(t *testing.T) {
	a, b := &collector{}, &collector{}
	s := NewStream("run-3", nil, a, b)
	s.Emit(Event{Type: EventReady, Message: "ready", URL: "http://localhost:8080"})
	s.Close()
	if len(a.snapshot()) != 1 || len(b.snapshot()) != 1 {
		t.Fatalf("each sink should see the event once")
	}
	if !EventReady.Terminal() || EventInfo.Terminal() {
		t.Fatalf("terminal classification wrong")
	}
}

func dialRun(t *testing.T, srv *httptest.Server, runID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?run=" + runID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", runID, err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r, r.URL.Query().Get("run")); err == ErrUnknownRun {
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHubScopesEventsByRun(t *testing.T) {
	hub := NewHub(logr.Discard())
	hub.Open("a")
	hub.Open("b")
	hub.Deliver(Event{RunID: "a", Seq: 1, Message: "a1"})
	hub.Deliver(Event{RunID: "b", Seq: 1, Message: "b1"})
	srv := newHubServer(t, hub)

	conn := dialRun(t, srv, "a")
	defer conn.Close()
	if ev := readEvent(t, conn); ev.Message != "a1" {
		t.Fatalf("backlog replay got %+v", ev)
	}
	hub.Deliver(Event{RunID: "b", Seq: 2, Message: "b2"})
	hub.Deliver(Event{RunID: "a", Seq: 2, Message: "a2"})
	if ev := readEvent(t, conn); ev.Message != "a2" || ev.RunID != "a" {
		t.Fatalf("expected a2, got %+v", ev)
	}

	hub.Finish("a")
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after finish, got %v", err)
	}
}

func TestHubReplaysFinishedRun(t *testing.T) {
	hub := NewHub(logr.Discard())
	hub.Open("done")
	hub.Deliver(Event{RunID: "done", Seq: 1, Message: "one"})
	hub.Deliver(Event{RunID: "done", Seq: 2, Type: EventReady, Message: "two"})
	hub.Finish("done")
	hub.Deliver(Event{RunID: "done", Seq: 3, Message: "late"})
	if !hub.Known("done") || len(hub.Backlog("done")) != 2 {
		t.Fatalf("finished run should keep its backlog")
	}
	srv := newHubServer(t, hub)

	conn := dialRun(t, srv, "done")
	defer conn.Close()
	if ev := readEvent(t, conn); ev.Message != "one" {
		t.Fatalf("got %+v", ev)
	}
	if ev := readEvent(t, conn); ev.Message != "two" {
		t.Fatalf("got %+v", ev)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after replay")
	}
}

func TestHubRejectsUnknownRun(t *testing.T) {
	hub := NewHub(logr.Discard())
	srv := newHubServer(t, hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?run=missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}
