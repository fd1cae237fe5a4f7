package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/mqtt"
)

// Frame types carried in WSMessage.Type.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound buffer. A client
	// that falls this far behind starts losing events.
	wsSendBufferSize = 256
)

// Broadcast channels clients can subscribe to.
const (
	ChannelDeviceState        = "device.state_changed"
	ChannelDeviceAvailability = "device.availability_changed"
	ChannelBridgeAvailability = "bridge.availability_changed"
)

// WSMessage is the frame format in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload carries the channel list for subscribe and
// unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub tracks connected WebSocket clients and fans events out to them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket session.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
	// Identity propagated from the WebSocket ticket.
	username  string
	sessionID string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin restrictions are the CORS middleware's job.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "username", client.username, "clients", h.ClientCount())
}

// Unregister removes a client. The send channel is closed exactly
// once, by whichever goroutine actually removes the client from the
// map; Unregister and closeAll can race during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	if present {
		delete(h.clients, client)
	}
	h.mu.Unlock()

	if !present {
		return
	}
	close(client.send)
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast delivers an event to every client subscribed to channel.
// The client set is snapshotted first; per-client locks are never held
// together with the hub lock.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	recipients := 0
	for _, client := range clients {
		if client.isSubscribed(channel) {
			client.trySend(data)
			recipients++
		}
	}
	if recipients > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", recipients)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// subscribeStateUpdates relays the bridge's MQTT state and availability
// publications to WebSocket clients. The relay only broadcasts;
// confirmed state enters the registry through the poll cycle, and the
// poller writes telemetry.
func (s *Server) subscribeStateUpdates() error {
	if s.mqtt == nil {
		return nil // MQTT not configured; WebSocket relay disabled
	}
	topics := s.mqtt.Topics()

	stateTopic := topics.DeviceState("+")
	s.logger.Info("subscribing to state updates for WebSocket relay", "topic", stateTopic)
	err := s.mqtt.Subscribe(stateTopic, 1, func(topic string, payload []byte) error {
		if s.hub == nil {
			return nil
		}
		entityID := topics.EntityID(topic)
		if entityID == "" {
			return nil
		}

		var state map[string]any
		if err := json.Unmarshal(payload, &state); err != nil {
			s.logger.Warn("failed to parse state message for WebSocket relay", "topic", topic, "error", err)
			return nil
		}

		s.hub.Broadcast(ChannelDeviceState, map[string]any{
			"device_id": entityID,
			"state":     state,
		})
		return nil
	})
	if err != nil {
		return err
	}

	availabilityTopic := topics.DeviceAvailability("+")
	return s.mqtt.Subscribe(availabilityTopic, 1, func(topic string, payload []byte) error {
		if s.hub == nil {
			return nil
		}
		entityID := topics.EntityID(topic)
		if entityID == "" {
			return nil
		}
		online := string(payload) == mqtt.PayloadOnline

		// The bridge's own LWT lives on the same topic shape.
		if entityID == "bridge" {
			s.hub.Broadcast(ChannelBridgeAvailability, map[string]any{"online": online})
			return nil
		}

		s.hub.Broadcast(ChannelDeviceAvailability, map[string]any{
			"device_id": entityID,
			"online":    online,
		})
		return nil
	})
}

// handleWebSocket upgrades the connection. Browsers cannot set an
// Authorization header on WebSocket dials, so authentication rides on
// a single-use ticket from POST /auth/ws-ticket instead.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.wsTickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own HTTP error.
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		username:      entry.username,
		sessionID:     entry.sessionID,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}

	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump owns the connection's read side until the client goes away.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	// A connection is dead once a full ping interval plus the pong
	// grace passes without any frame from the client.
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			abnormal := websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure)
			if abnormal {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Application-level frames also count as liveness; some
		// browsers never answer protocol pings.
		_ = c.conn.SetReadDeadline(time.Now().Add(idle))
		c.handleMessage(frame)
	}
}

// writePump owns the connection's write side: queued frames plus
// periodic protocol pings.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage dispatches one inbound frame.
func (c *WSClient) handleMessage(frame []byte) {
	var msg WSMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// channelsFrom extracts the channel list from a subscribe or
// unsubscribe frame. The payload arrives as any and has to go through
// JSON again to take shape.
func channelsFrom(msg WSMessage) ([]string, bool) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, false
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, false
	}
	return sub.Channels, true
}

func (c *WSClient) handleSubscribe(msg WSMessage) {
	channels, ok := channelsFrom(msg)
	if !ok {
		c.sendError(msg.ID, "invalid subscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed", "username", c.username, "channels", channels)

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"subscribed": channels,
	})
}

func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	channels, ok := channelsFrom(msg)
	if !ok {
		c.sendError(msg.ID, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"unsubscribed": channels,
	})
}

// trySend queues data for the write pump. A full buffer drops the
// frame; a closed channel (client unregistered mid-broadcast) is
// absorbed via recover.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		_ = recover()
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// sendResponse queues a control response. Delivery is best effort,
// same as events.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
