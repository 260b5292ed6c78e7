package webapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"adstudio/internal/view"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
	sendBuffer     = 16
)

// Hub fans view events out to every browser tab of a session.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
}

type client struct {
	key  string
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
		logger:  logger,
		clients: make(map[string]map[*client]struct{}),
	}
}

// Publish is the session registry's change hook.
func (h *Hub) Publish(key string, ev view.Event) {
	h.mu.Lock()
	n := len(h.clients[key])
	h.mu.Unlock()
	if n == 0 {
		return
	}

	payload, err := json.Marshal(toEventDTO(ev))
	if err != nil {
		h.logger.Error("marshal view event failed", "session", key, "err", err)
		return
	}
	h.broadcast(key, payload)
}

func (h *Hub) broadcast(key string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[key] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("dropping slow websocket client", "session", key)
			h.removeLocked(c)
		}
	}
}

// Count reports the open connections of a session, or of every session when
// key is empty.
func (h *Hub) Count(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if key != "" {
		return len(h.clients[key])
	}
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Serve upgrades the request and streams events for key until the socket
// closes. initial is written first so a new tab starts from the current view.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, key string, initial []byte) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session", key, "err", err)
		return
	}

	c := &client{key: key, conn: conn, send: make(chan []byte, sendBuffer)}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	if h.clients[key] == nil {
		h.clients[key] = make(map[*client]struct{})
	}
	h.clients[key][c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.key]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.key)
	}
}

// readPump only drains control frames; the socket is server push only.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "session", c.key, "err", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warn("websocket write failed", "session", c.key, "err", err)
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
