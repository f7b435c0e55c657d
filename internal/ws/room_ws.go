package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"tripchat-service/internal/ingest"
	"tripchat-service/internal/middleware"
	"tripchat-service/internal/models"
	"tripchat-service/internal/observability"
	"tripchat-service/internal/repositories"
)

// MessageSubmitter is the ingestion surface the read loop depends on.
type MessageSubmitter interface {
	Submit(ctx context.Context, req ingest.SubmitRequest) (models.ChatMessage, error)
}

// RoomWebSocketHandler upgrades room connections and feeds inbound client
// frames into the ingestion gateway.
type RoomWebSocketHandler struct {
	hub     *Hub
	members repositories.MembershipRepository
	gateway MessageSubmitter
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, members repositories.MembershipRepository, gateway MessageSubmitter) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, members: members, gateway: gateway}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundFrame is what connected clients send. Only text payloads arrive
// on the socket; image submissions go through the HTTP endpoint.
type inboundFrame struct {
	Text string `json:"text"`
}

// Handle upgrades the connection, registers the viewer and runs the read
// loop until the client disconnects.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("tripchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}

	claims, err := middleware.ParseBearer(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	name, err := h.members.MemberName(c.Request.Context(), roomID, claims.UserID)
	if err != nil {
		status := http.StatusForbidden
		if !errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": "not authorized for room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(roomID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycleEvent(ctx, roomID, info, "ws_connect", "", requestID, traceID)

	// The request context dies when this handler returns; the connection
	// outlives it. Detach the cancellation but keep the handshake's trace
	// so every submission from this socket stays in its trace.
	connCtx, cancelConn := context.WithCancel(context.WithoutCancel(ctx))
	go h.readLoop(connCtx, cancelConn, roomID, claims.UserID, name, conn, info, requestID, traceID)
}

// readLoop consumes client frames until the connection drops. Each frame
// becomes a gateway submission; submission errors are reported back on
// the socket but never close it.
func (h *RoomWebSocketHandler) readLoop(ctx context.Context, cancel context.CancelFunc, roomID, userID int, userName string, conn *websocket.Conn, info ConnInfo, requestID, traceID string) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(roomID, conn)
		conn.Close()
		cancel()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycleEvent(context.Background(), roomID, info, "ws_disconnect", closeReason, requestID, traceID)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Text == "" {
			h.writeError(roomID, conn, "invalid frame")
			continue
		}

		_, err = h.gateway.Submit(ctx, ingest.SubmitRequest{
			RoomID:     roomID,
			SenderID:   userID,
			SenderName: userName,
			Kind:       models.KindText,
			Text:       frame.Text,
		})
		var degraded *ingest.DeliveryDegradedError
		switch {
		case err == nil:
			// Delivery to this room's viewers arrives through the
			// dispatcher, not as a direct echo.
		case errors.As(err, &degraded):
			log.Printf("ws submit degraded room=%d user=%d: %v", roomID, userID, err)
		default:
			log.Printf("ws submit failed room=%d user=%d: %v", roomID, userID, err)
			h.writeError(roomID, conn, "message not accepted")
		}
	}
}

func (h *RoomWebSocketHandler) writeError(roomID int, conn *websocket.Conn, reason string) {
	payload, _ := json.Marshal(models.RoomEvent{Type: "error", Error: reason})
	if err := h.hub.WriteToClient(roomID, conn, payload); err != nil {
		log.Printf("websocket error write failed: %v", err)
	}
}

func (h *RoomWebSocketHandler) publishLifecycleEvent(ctx context.Context, roomID int, info ConnInfo, event, reason, requestID, traceID string) {
	_ = observability.PublishEvent(ctx, "ws_events.rooms", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"room_id":     roomID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(requestID, traceID))
}
