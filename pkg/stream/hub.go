// Package stream fans ledger events out to websocket subscribers.
package stream

import (
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Hub broadcasts every emitted event to all connected subscribers. A
// subscriber that cannot keep up with its buffer is dropped rather than
// allowed to stall the ledger.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	buffer   int

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
}

// NewHub creates a hub with the given per-client buffer size.
func NewHub(logger *zap.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer:  buffer,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Emit broadcasts the event to all subscribers. Never blocks.
func (h *Hub) Emit(ev *types.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("event-marshal-failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, ch := range h.clients {
		select {
		case ch <- payload:
			EventsBroadcastTotal.Inc()
		default:
			h.logger.Warn("slow-subscriber-dropped",
				zap.String("remote", conn.RemoteAddr().String()))
			h.dropLocked(conn)
		}
	}
}

// Handler returns the websocket upgrade handler.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket-upgrade-failed", zap.Error(err))
			return
		}

		ch := make(chan []byte, h.buffer)

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.clients[conn] = ch
		SubscribersGauge.Inc()
		h.mu.Unlock()

		h.logger.Info("subscriber-connected",
			zap.String("remote", conn.RemoteAddr().String()))

		go h.writeLoop(conn, ch)
		go h.readLoop(conn)
	}
}

// writeLoop pumps broadcast payloads to one subscriber until its channel
// closes or a write fails.
func (h *Hub) writeLoop(conn *websocket.Conn, ch chan []byte) {
	for payload := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.TextMessage, payload)
		if err != nil {
			h.Drop(conn)
			return
		}
	}
	conn.Close()
}

// readLoop discards inbound frames so control messages are processed and a
// peer close is noticed.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			h.Drop(conn)
			return
		}
	}
}

// Drop disconnects one subscriber.
func (h *Hub) Drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(conn)
}

func (h *Hub) dropLocked(conn *websocket.Conn) {
	ch, ok := h.clients[conn]
	if !ok {
		return
	}
	delete(h.clients, conn)
	close(ch)
	SubscribersGauge.Dec()
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for conn := range h.clients {
		h.dropLocked(conn)
	}
	h.logger.Info("stream-hub-closed")
}
