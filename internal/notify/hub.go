package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	maxBacklog       = 500
	finishedRetained = 128
	clientBuffer     = 256
)

// ErrUnknownRun is returned when subscribing to a run the hub has never seen.
var ErrUnknownRun = errors.New("unknown run")

// Hub fans events out to websocket subscribers, scoped by run. Subscribers
// of one run never see another run's events. Late subscribers get the run's
// backlog replayed first; finished runs keep their backlog in a bounded
// cache.
type Hub struct {
	mu       sync.RWMutex
	live     map[string]*channel
	finished *lru.Cache[string, [][]byte]
	upgrader websocket.Upgrader
	logger   logr.Logger
}

type channel struct {
	clients map[*client]struct{}
	backlog [][]byte
}

// NewHub returns an empty hub.
func NewHub(logger logr.Logger) *Hub {
	finished, err := lru.New[string, [][]byte](finishedRetained)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &Hub{
		live:     make(map[string]*channel),
		finished: finished,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Open registers runID so subscribers can attach before its first event.
func (h *Hub) Open(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[runID]; !ok {
		h.live[runID] = &channel{clients: make(map[*client]struct{})}
	}
}

// Known reports whether runID is live or recently finished.
func (h *Hub) Known(runID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.live[runID]; ok {
		return true
	}
	return h.finished.Contains(runID)
}

// Deliver implements Sink.
func (h *Hub) Deliver(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error(err, "encode progress event", "run", ev.RunID)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.live[ev.RunID]
	if !ok {
		if h.finished.Contains(ev.RunID) {
			return
		}
		ch = &channel{clients: make(map[*client]struct{})}
		h.live[ev.RunID] = ch
	}
	ch.backlog = append(ch.backlog, payload)
	if overflow := len(ch.backlog) - maxBacklog; overflow > 0 {
		ch.backlog = ch.backlog[overflow:]
	}
	for c := range ch.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Info("dropping progress subscriber for slow reader", "run", ev.RunID)
			delete(ch.clients, c)
			c.Close()
		}
	}
}

// Finish ends runID: subscribers receive the remaining queued events and are
// disconnected, and the backlog moves to the finished cache.
func (h *Hub) Finish(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.live[runID]
	if !ok {
		return
	}
	delete(h.live, runID)
	for c := range ch.clients {
		c.Close()
	}
	h.finished.Add(runID, ch.backlog)
}

// Backlog returns the encoded events recorded for runID.
func (h *Hub) Backlog(runID string) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ch, ok := h.live[runID]; ok {
		return append([][]byte(nil), ch.backlog...)
	}
	if backlog, ok := h.finished.Get(runID); ok {
		return append([][]byte(nil), backlog...)
	}
	return nil
}

// ServeWS upgrades the request and streams runID's events until the run
// finishes or the peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, runID string) error {
	if !h.Known(runID) {
		return ErrUnknownRun
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := newClient(conn, h.logger)
	h.subscribe(runID, c)
	go c.writeLoop()
	c.readLoop(func() {
		h.unsubscribe(runID, c)
	})
	return nil
}

func (h *Hub) subscribe(runID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, live := h.live[runID]
	var backlog [][]byte
	if live {
		backlog = ch.backlog
	} else if finished, ok := h.finished.Get(runID); ok {
		backlog = finished
	}
	c.send = make(chan []byte, max(clientBuffer, len(backlog)+clientBuffer))
	for _, payload := range backlog {
		c.send <- payload
	}
	if !live {
		c.Close()
		return
	}
	ch.clients[c] = struct{}{}
}

func (h *Hub) unsubscribe(runID string, c *client) {
	h.mu.Lock()
	if ch, ok := h.live[runID]; ok {
		delete(ch.clients, c)
	}
	h.mu.Unlock()
	c.Close()
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for runID, ch := range h.live {
		for c := range ch.clients {
			c.Close()
		}
		delete(h.live, runID)
	}
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	logger logr.Logger
	once   sync.Once
}

func newClient(conn *websocket.Conn, logger logr.Logger) *client {
	return &client{conn: conn, logger: logger}
}

// writeLoop drains send, then closes the connection.
func (c *client) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.logger.V(1).Info("write progress websocket message", "error", err.Error())
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}

func (c *client) readLoop(onClose func()) {
	defer func() {
		if onClose != nil {
			onClose()
		}
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close stops the writer after it flushes what is already queued.
func (c *client) Close() {
	c.once.Do(func() {
		close(c.send)
	})
}
