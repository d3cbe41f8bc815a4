package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one live websocket connection with its subscription sets.
type Client struct {
	ID          string
	ConnectedAt time.Time

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	devices    map[string]struct{}
	dashboards map[string]struct{}
}

func (c *Client) subscribeDevice(id string) {
	c.mu.Lock()
	c.devices[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unsubscribeDevice(id string) {
	c.mu.Lock()
	delete(c.devices, id)
	c.mu.Unlock()
}

func (c *Client) subscribeDashboard(id string) {
	c.mu.Lock()
	c.dashboards[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) subscribedTo(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.devices[deviceID]
	return ok
}

// enqueue hands a message to the write pump without blocking. A slow client
// loses the message rather than stalling delivery to its peers.
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping message")
	}
}

func (c *Client) sendEvent(eventType string, payload any) {
	msg, err := json.Marshal(envelope{Type: eventType, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("marshal event")
		return
	}
	c.enqueue(msg)
}

type inboundMessage struct {
	Type        string          `json:"type"`
	DeviceID    string          `json:"device_id"`
	DashboardID string          `json:"dashboard_id"`
	CommandType string          `json:"command_type"`
	CommandData json.RawMessage `json:"command_data"`
	UserID      string          `json:"user_id"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("websocket read error")
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendEvent(EventCommandError, CommandError{Error: "malformed message"})
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *inboundMessage) {
	switch msg.Type {
	case msgSubscribeDevice:
		if msg.DeviceID != "" {
			c.subscribeDevice(msg.DeviceID)
		}
	case msgUnsubscribeDevice:
		if msg.DeviceID != "" {
			c.unsubscribeDevice(msg.DeviceID)
		}
	case msgSubscribeDashboard:
		if msg.DashboardID != "" {
			c.subscribeDashboard(msg.DashboardID)
		}
	case msgDeviceCommand:
		c.handleCommand(msg)
	default:
		log.Debug().Str("type", msg.Type).Str("connection_id", c.ID).Msg("ignoring unknown message type")
	}
}

// handleCommand persists the command and routes it to the relay; only the
// issuing connection hears back, success or failure.
func (c *Client) handleCommand(msg *inboundMessage) {
	if msg.DeviceID == "" || msg.CommandType == "" {
		c.sendEvent(EventCommandError, CommandError{Error: "device_id and command_type are required"})
		return
	}
	if c.hub.commands == nil {
		c.sendEvent(EventCommandError, CommandError{Error: "command handling unavailable"})
		return
	}
	cmd, err := c.hub.commands.QueueCommand(msg.DeviceID, msg.CommandType, msg.CommandData, msg.UserID)
	if err != nil {
		log.Error().Err(err).Str("device_id", msg.DeviceID).Msg("queue command failed")
		c.sendEvent(EventCommandError, CommandError{Error: err.Error()})
		return
	}
	c.sendEvent(EventCommandQueued, CommandQueued{CommandID: cmd.ID, Status: cmd.Status})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
