package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guyghost/perpcore/internal/logger"
)

// Frame is one WS /ws push: {type, timestamp, data}.
type Frame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Frame type names.
const (
	FrameSnapshot   = "snapshot"
	FramePositions  = "positions"
	FrameOrders     = "orders"
	FrameOpenOrders = "open-orders"
	FrameEquity     = "equity"
	FrameCandle     = "candle"
	FrameSignals    = "signals"
	FramePrices     = "prices"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same operator deployment as the API;
	// cross-origin WS is not part of the contract.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans out Frames to every connected WebSocket client. One goroutine
// per client drains its own send buffer so a slow reader cannot block the
// broadcaster, in the same spirit as internal/exchange.EventStream draining
// batches under lock rather than invoking callbacks recursively.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *logger.Logger
}

type client struct {
	conn *websocket.Conn
	send chan Frame
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     logger.Component("httpapi-hub"),
	}
}

// Broadcast pushes a Frame to every connected client. Clients with a full
// send buffer are dropped rather than blocking the caller.
func (h *Hub) Broadcast(frameType string, data any) {
	frame := Frame{Type: frameType, Timestamp: time.Now().UTC(), Data: data}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Warn("dropping slow websocket client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *client) writeLoop() {
	for frame := range c.send {
		data, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
