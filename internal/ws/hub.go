package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Wafik13/PFE-sub001/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CommandHandler persists a client-issued device command and routes it to
// the relay. Implemented by the service layer.
type CommandHandler interface {
	QueueCommand(deviceID, commandType string, data json.RawMessage, userID string) (*domain.Command, error)
}

// Hub owns the set of live client connections and implements the two
// delivery disciplines: subscription-filtered per-device publish and
// unconditional broadcast. The raw connection map never leaves this package.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	commands CommandHandler
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// SetCommandHandler wires the command path. Must be called before ServeWS.
func (h *Hub) SetCommandHandler(ch CommandHandler) { h.commands = ch }

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	log.Info().Str("connection_id", c.ID).Int("total", h.Count()).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	log.Info().Str("connection_id", c.ID).Int("total", h.Count()).Msg("websocket client disconnected")
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll delivers the event to every open connection regardless of
// subscription state. Used for alarms and critical alerts.
func (h *Hub) BroadcastAll(eventType string, payload any) {
	msg, err := json.Marshal(envelope{Type: eventType, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("marshal broadcast")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

// BroadcastToDevice delivers the event only to connections subscribed to
// the device. No buffering, no replay for late subscribers.
func (h *Hub) BroadcastToDevice(deviceID, eventType string, payload any) {
	msg, err := json.Marshal(envelope{Type: eventType, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("marshal broadcast")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribedTo(deviceID) {
			c.enqueue(msg)
		}
	}
}

// ServeWS upgrades the request and runs the connection until the client
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(h, conn)
	h.add(c)

	c.sendEvent(EventConnection, welcome{
		Message:      "connected to SCADA realtime service",
		ConnectionID: c.ID,
		Timestamp:    time.Now().UTC(),
	})

	go c.writePump()
	c.readPump()
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now().UTC(),
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		devices:     make(map[string]struct{}),
		dashboards:  make(map[string]struct{}),
	}
}
