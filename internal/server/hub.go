package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/Inferara/web3-canvas-sub000/internal/graph"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxReadBytes = 4096
)

// StreamSnapshot is the first message on every stream. Store events follow,
// each encoded as a graph.Event.
type StreamSnapshot struct {
	Type  string      `json:"type"`
	Graph graph.Graph `json:"graph"`
}

type streamMetrics interface {
	StreamOpened(delta int)
}

type client struct {
	conn *websocket.Conn
	send chan any
}

// Hub fans store events out to websocket clients. A client that falls
// sendBuffer events behind is disconnected.
type Hub struct {
	store    *graph.Store
	logger   hclog.Logger
	metrics  streamMetrics
	upgrader websocket.Upgrader

	mu          sync.Mutex
	clients     map[*client]struct{}
	closed      bool
	unsubscribe func()
}

// NewHub subscribes to the store until Close
func NewHub(store *graph.Store, logger hclog.Logger, metrics streamMetrics) *Hub {
	h := &Hub{
		store:   store,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	h.unsubscribe = store.Subscribe(h.broadcast)
	return h
}

// Clients returns the number of connected streams
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev graph.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("stream client too slow, disconnecting", "remote", c.conn.RemoteAddr())
			h.dropLocked(c)
		}
	}
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.StreamOpened(-1)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

// Handle upgrades the request and streams until the client goes away
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan any, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	cl.send <- StreamSnapshot{Type: "snapshot", Graph: h.store.Serialize()}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	h.metrics.StreamOpened(1)
	h.logger.Debug("stream client connected", "remote", conn.RemoteAddr())

	go h.writePump(cl)
	h.readPump(cl)
}

// readPump discards client input and notices disconnects
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		h.logger.Debug("stream client disconnected", "remote", c.conn.RemoteAddr())
	}()
	c.conn.SetReadLimit(maxReadBytes)
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

func (h *Hub) writePump(c *client) {
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
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("stream write failed", "error", err)
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

// Close disconnects every client and stops listening to the store
func (h *Hub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}
