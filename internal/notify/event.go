// Package notify delivers ordered progress events for a run to a set of
// sinks: websocket subscribers, the log, the run ledger, and the CLI.
package notify

import (
	"time"

	"github.com/go-logr/logr"
)

// EventType classifies an event.
type EventType string

const (
	// EventState marks a pipeline state transition.
	EventState EventType = "state"
	// EventInfo is an informative sub-event such as "artifacts created".
	EventInfo EventType = "info"
	// EventReady is the terminal success event; URL carries the endpoint.
	EventReady EventType = "ready"
	// EventFailed is the terminal failure event; Kind carries the failure kind.
	EventFailed EventType = "failed"
)

// Terminal reports whether t ends a run.
func (t EventType) Terminal() bool {
	return t == EventReady || t == EventFailed
}

// Event is one progress message of a run. Seq is assigned in emission
// order and Time when the event is delivered.
type Event struct {
	RunID   string    `json:"runId"`
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Type    EventType `json:"type"`
	State   string    `json:"state,omitempty"`
	Message string    `json:"message"`
	URL     string    `json:"url,omitempty"`
	Kind    string    `json:"kind,omitempty"`
}

// Sink receives delivered events. Deliver is called from a single goroutine
// per run, in order.
type Sink interface {
	Deliver(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Deliver(ev Event) { f(ev) }

// LogSink writes every event to log.
func LogSink(log logr.Logger) Sink {
	return SinkFunc(func(ev Event) {
		kv := []any{"run", ev.RunID, "seq", ev.Seq, "type", string(ev.Type)}
		if ev.State != "" {
			kv = append(kv, "state", ev.State)
		}
		if ev.URL != "" {
			kv = append(kv, "url", ev.URL)
		}
		if ev.Kind != "" {
			kv = append(kv, "kind", ev.Kind)
		}
		log.Info(ev.Message, kv...)
	})
}
