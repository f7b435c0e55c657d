package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tripchat-service/internal/models"
	"tripchat-service/internal/observability"
)

// client pairs a registered connection's metadata with its write lock.
// gorilla/websocket allows one concurrent writer per connection, so every
// write to a registered conn goes through writeMu.
type client struct {
	info    ConnInfo
	writeMu sync.Mutex
}

// Hub is the live-viewer registry: which websocket connections are
// currently viewing which room. It is ephemeral state, rebuilt from
// reconnects, and owns no durable data.
type Hub struct {
	clients map[int]map[*websocket.Conn]*client
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[int]map[*websocket.Conn]*client),
	}
}

// AddClient registers a websocket connection as a live viewer of a room.
func (h *Hub) AddClient(roomID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[roomID]; !ok {
		h.clients[roomID] = make(map[*websocket.Conn]*client)
	}
	h.clients[roomID][conn] = &client{info: info}
}

// RemoveClient removes a websocket connection from a room.
func (h *Hub) RemoveClient(roomID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[roomID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(h.clients, roomID)
		}
	}
}

// ViewerIDs returns the user ids currently viewing a room.
func (h *Hub) ViewerIDs(roomID int) map[int]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	viewers := make(map[int]bool, len(h.clients[roomID]))
	for _, cl := range h.clients[roomID] {
		viewers[cl.info.UserID] = true
	}
	return viewers
}

// WriteToClient sends a payload to one registered connection, serialized
// against concurrent broadcasts to the same conn.
func (h *Hub) WriteToClient(roomID int, conn *websocket.Conn, payload []byte) error {
	h.mu.RLock()
	cl := h.clients[roomID][conn]
	h.mu.RUnlock()
	if cl == nil {
		return websocket.ErrCloseSent
	}

	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// BroadcastRoomMessage sends a message to all live viewers of its room.
// The target set is snapshotted under the read lock before any write so
// handshakes registering into the same room never race the iteration.
// Redelivery from the broker may repeat a message id; content is never
// altered, clients dedupe by id.
func (h *Hub) BroadcastRoomMessage(msg models.ChatMessage) {
	type target struct {
		conn *websocket.Conn
		cl   *client
	}

	h.mu.RLock()
	targets := make([]target, 0, len(h.clients[msg.RoomID]))
	for conn, cl := range h.clients[msg.RoomID] {
		targets = append(targets, target{conn: conn, cl: cl})
	}
	h.mu.RUnlock()

	event := models.RoomEvent{Type: "message", Message: &msg}
	payload, _ := json.Marshal(event)
	for _, t := range targets {
		t.cl.writeMu.Lock()
		err := t.conn.WriteMessage(websocket.TextMessage, payload)
		t.cl.writeMu.Unlock()
		if err != nil {
			log.Printf("websocket write error: %v", err)
			t.conn.Close()
			h.RemoveClient(msg.RoomID, t.conn)
			h.publishWSError(msg.RoomID, t.cl.info, err)
		}
	}
	observability.IncFanoutBroadcast()
}

func (h *Hub) publishWSError(roomID int, info ConnInfo, err error) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"room_id":     roomID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.rooms", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
