package httpapi

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"breeder/internal/model"
	"breeder/internal/problem"
)

const (
	SubjectGeneration = "generation"
	SubjectFinished   = "finished"

	clientBuffer = 256
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
)

// Message is the JSON envelope written to stream clients.
type Message struct {
	Subject   string `json:"subject"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type client struct {
	runID string
	conn  *websocket.Conn
	send  chan []byte
}

// Hub fans run events out to websocket clients watching that run. It is a
// platform.Sink.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{}), now: time.Now}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) RunStarted(model.RunRecord) {}

func (h *Hub) Generation(run model.RunRecord, ev problem.GenerationEvent) {
	h.broadcast(run.ID, SubjectGeneration, ev, false)
}

func (h *Hub) RunFinished(run model.RunRecord) {
	h.broadcast(run.ID, SubjectFinished, run, true)
}

func (h *Hub) subscribe(runID string, conn *websocket.Conn) *client {
	c := &client{runID: runID, conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// unsubscribe drops c; its send channel is closed unless a final message
// already closed it.
func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// finish sends the final message to a single client, for runs that ended
// before the client subscribed.
func (h *Hub) finish(c *client, run model.RunRecord) {
	msg, err := h.encode(SubjectFinished, run)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.deliver(c, msg, true)
}

func (h *Hub) broadcast(runID, subject string, data any, final bool) {
	msg, err := h.encode(subject, data)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.runID == runID {
			h.deliver(c, msg, final)
		}
	}
}

// deliver must be called with h.mu held. Slow clients lose generation
// messages rather than stall the run.
func (h *Hub) deliver(c *client, msg []byte, final bool) {
	select {
	case c.send <- msg:
	default:
	}
	if final {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) encode(subject string, data any) ([]byte, error) {
	return json.Marshal(Message{
		Subject:   subject,
		Data:      data,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and returns when the peer goes away.
func (c *client) readPump(h *Hub) {
	defer h.unsubscribe(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
