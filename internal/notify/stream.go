package notify

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

type pending struct {
	event Event
	delay time.Duration
}

// Stream is the ordered event channel of one run. Every event, delayed or
// not, passes through a single FIFO served by one worker, so at most one
// delay is in flight and delivery order always equals emission order.
type Stream struct {
	runID string
	clock clock.Clock
	sinks []Sink

	mu      sync.Mutex
	queue   []pending
	seq     int
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	dropped int
}

// NewStream starts the delivery worker for runID.
func NewStream(runID string, c clock.Clock, sinks ...Sink) *Stream {
	if c == nil {
		c = clock.RealClock{}
	}
	s := &Stream{
		runID: runID,
		clock: c,
		sinks: sinks,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// RunID returns the run this stream belongs to.
func (s *Stream) RunID() string { return s.runID }

// Emit queues ev for immediate delivery.
func (s *Stream) Emit(ev Event) {
	s.EmitAfter(0, ev)
}

// EmitAfter queues ev to be delivered delay after the previous event in the
// queue was delivered. Events emitted after Close are dropped.
func (s *Stream) EmitAfter(delay time.Duration, ev Event) {
	s.mu.Lock()
	if s.closed {
		s.dropped++
		s.mu.Unlock()
		return
	}
	s.seq++
	ev.RunID = s.runID
	ev.Seq = s.seq
	s.queue = append(s.queue, pending{event: ev, delay: delay})
	s.mu.Unlock()
	s.signal()
}

// Close stops accepting events, delivers everything already queued, and
// waits for the worker to exit.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
	<-s.done
}

// Dropped reports how many events arrived after Close.
func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stream) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.wake
			continue
		}
		next := s.queue[0]
		s.queue[0] = pending{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if next.delay > 0 {
			<-s.clock.After(next.delay)
		}
		next.event.Time = s.clock.Now()
		for _, sink := range s.sinks {
			sink.Deliver(next.event)
		}
	}
}
