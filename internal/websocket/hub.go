package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"physics-chat/internal/middleware"
	"physics-chat/internal/models"
	"physics-chat/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const maxFrameBytes = 64 << 10

type submitter interface {
	Submit(ctx context.Context, sessionID, text string) ([]models.Turn, error)
}

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub pushes new turns to every open tab of a session. With a Redis client the
// updates travel over pub/sub so any server instance can deliver them.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*client
	redisClient *redis.Client
	cancelFuncs map[string]context.CancelFunc
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		connections: make(map[string][]*client),
		redisClient: redisClient,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// Handler upgrades the request and feeds submitted messages to chat.
func (h *Hub) Handler(chat submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := middleware.GetSessionID(r.Context())
		if sessionID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		conn.SetReadLimit(maxFrameBytes)

		c := &client{conn: conn}
		h.registerConnection(sessionID, c)

		go h.readLoop(sessionID, c, chat)
	}
}

func (h *Hub) readLoop(sessionID string, c *client, chat submitter) {
	defer h.unregisterConnection(sessionID, c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg models.WSSubmit
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(c, "VALIDATION_ERROR", "Invalid message frame")
			continue
		}

		// Turns reach this tab through PublishTurns like every other tab.
		if _, err := chat.Submit(context.Background(), sessionID, msg.Message); err != nil {
			switch {
			case errors.Is(err, session.ErrEmptyMessage):
				h.sendError(c, "VALIDATION_ERROR", "Message is required")
			case errors.Is(err, session.ErrReplyPending):
				h.sendError(c, "REPLY_PENDING", "A reply is still being generated")
			default:
				log.Printf("WebSocket submission failed for session %s: %v", sessionID, err)
				h.sendError(c, "INTERNAL_ERROR", "Failed to process message")
			}
		}
	}
}

func (h *Hub) sendError(c *client, code, message string) {
	data, err := json.Marshal(models.WSMessage{
		Type:    models.WSTypeError,
		Payload: models.ErrorEvent{ErrorCode: code, ErrorMessage: message},
	})
	if err != nil {
		return
	}
	c.write(data)
}

// PublishTurns delivers newly appended turns to all connections of sessionID.
func (h *Hub) PublishTurns(ctx context.Context, sessionID string, turns []models.Turn) {
	data, err := json.Marshal(models.WSMessage{Type: models.WSTypeTurns, Payload: turns})
	if err != nil {
		return
	}

	if h.redisClient != nil {
		err := h.redisClient.Publish(ctx, channelName(sessionID), string(data)).Err()
		if err == nil {
			return
		}
		log.Printf("Redis publish failed for session %s, delivering locally: %v", sessionID, err)
	}
	h.broadcast(sessionID, data)
}

// Connections reports how many sockets are open for sessionID.
func (h *Hub) Connections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

func (h *Hub) registerConnection(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[sessionID] = append(h.connections[sessionID], c)

	// Start pub/sub subscription if this is the first connection for this session
	if h.redisClient != nil && len(h.connections[sessionID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.subscribeToPubSub(ctx, sessionID)
	}

	log.Printf("WebSocket connected: session %s (total: %d)", sessionID, len(h.connections[sessionID]))
}

func (h *Hub) unregisterConnection(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[sessionID]
	for i, existing := range conns {
		if existing == c {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}

	log.Printf("WebSocket disconnected: session %s", sessionID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, sessionID string) {
	pubsub := h.redisClient.Subscribe(ctx, channelName(sessionID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.connections[sessionID] {
		c.write(data)
	}
}

func channelName(sessionID string) string {
	return "session_updates:" + sessionID
}
