package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"TickStockApp/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 512
)

var ErrHubClosed = errors.New("websocket hub closed")

// Message is the frame written to every client.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	Time  time.Time   `json:"time"`
}

type client struct {
	id        string
	namespace string
	conn      *websocket.Conn
	send      chan []byte
}

// HubOption configures Hub.
type HubOption func(*Hub)

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuf = n
		}
	}
}

// WithCheckOrigin overrides the upgrader origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// Hub fans events out to connected websocket clients grouped by namespace.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger
	sendBuf  int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(l *logger.Logger, opts ...HubOption) *Hub {
	if l == nil {
		l = logger.Nop()
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     l.With(logger.String("component", "websocket_hub")),
		sendBuf: 256,
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
// The namespace query parameter selects the namespace, "/" by default.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	ns := r.URL.Query().Get("namespace")
	if ns == "" {
		ns = "/"
	}
	c := &client{
		id:        uuid.NewString(),
		namespace: ns,
		conn:      conn,
		send:      make(chan []byte, h.sendBuf),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// Emit queues event for every client in namespace. Slow clients drop the frame.
func (h *Hub) Emit(event string, payload interface{}, namespace string) error {
	data, err := json.Marshal(Message{Event: event, Data: payload, Time: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	if namespace == "" {
		namespace = "/"
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	for _, c := range h.clients {
		if c.namespace != namespace {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn("client send buffer full, dropping frame",
				logger.String("client_id", c.id),
				logger.String("event", event),
			)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects further emits.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.log.Debug("client connected", logger.String("client_id", c.id), logger.String("namespace", c.namespace))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", logger.String("client_id", c.id), logger.Error(err))
			}
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
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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
