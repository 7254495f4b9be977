package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/interfaces"
	"github.com/ternarybob/covera/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeWait = 5 * time.Second

// WSMessage is the envelope of every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketHandler streams job status and progress events to connected clients
type WebSocketHandler struct {
	logger           arbor.ILogger
	eventService     interfaces.EventService
	throttleInterval time.Duration
	serverInstanceID string

	mu       sync.RWMutex
	clients  map[*websocket.Conn]*wsClient
	limiters map[string]*rate.Limiter
	closed   bool
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
		clients:          make(map[*websocket.Conn]*wsClient),
		limiters:         make(map[string]*rate.Limiter),
	}

	if config != nil && config.ThrottleInterval != "" {
		if d, err := time.ParseDuration(config.ThrottleInterval); err == nil {
			h.throttleInterval = d
		} else {
			logger.Warn().
				Err(err).
				Str("interval", config.ThrottleInterval).
				Msg("Failed to parse progress throttle interval - throttling disabled")
		}
	}

	logger.Debug().
		Str("server_instance_id", h.serverInstanceID).
		Dur("throttle_interval", h.throttleInterval).
		Msg("WebSocket handler initialized")
	return h
}

// SubscribeToJobEvents wires the handler to the event bus
func (h *WebSocketHandler) SubscribeToJobEvents() error {
	if h.eventService == nil {
		return nil
	}
	if err := h.eventService.Subscribe(interfaces.EventJobStatus, h.onJobStatus); err != nil {
		return err
	}
	return h.eventService.Subscribe(interfaces.EventJobProgress, h.onJobProgress)
}

// HandleWebSocket upgrades the connection and keeps it registered until the client goes away
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	if data, err := json.Marshal(WSMessage{
		Type:    "connected",
		Payload: map[string]string{"server_instance_id": h.serverInstanceID},
	}); err == nil {
		_ = client.write(data)
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and ignores later events
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.conn.Close()
		c.mu.Unlock()
	}
}

func (h *WebSocketHandler) onJobStatus(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		h.logger.Warn().Msg("Invalid job status event payload type")
		return nil
	}

	jobID, _ := payload["job_id"].(string)
	status, _ := payload["status"].(string)
	if models.JobStatus(status).IsTerminal() {
		h.mu.Lock()
		delete(h.limiters, jobID)
		h.mu.Unlock()
	}

	h.broadcast(WSMessage{Type: string(interfaces.EventJobStatus), Payload: payload})
	return nil
}

func (h *WebSocketHandler) onJobProgress(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		h.logger.Warn().Msg("Invalid job progress event payload type")
		return nil
	}

	jobID, _ := payload["job_id"].(string)
	if !h.allowProgress(jobID) {
		return nil
	}

	h.broadcast(WSMessage{Type: string(interfaces.EventJobProgress), Payload: payload})
	return nil
}

// allowProgress applies the per-job throttle. Status events bypass it.
func (h *WebSocketHandler) allowProgress(jobID string) bool {
	if h.throttleInterval <= 0 {
		return true
	}

	h.mu.Lock()
	limiter, ok := h.limiters[jobID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.throttleInterval), 1)
		h.limiters[jobID] = limiter
	}
	h.mu.Unlock()

	return limiter.Allow()
}

func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}
