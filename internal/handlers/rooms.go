package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tripchat-service/internal/ingest"
	"tripchat-service/internal/models"
	"tripchat-service/internal/repositories"
	"tripchat-service/internal/telemetry"
)

// MessageGateway is the ingestion surface the HTTP layer depends on.
type MessageGateway interface {
	Submit(ctx context.Context, req ingest.SubmitRequest) (models.ChatMessage, error)
	SendJoinMessage(ctx context.Context, roomID, userID int) (models.ChatMessage, error)
	SendLeaveMessage(ctx context.Context, roomID, userID int) (models.ChatMessage, error)
}

// RoomHandler manages room history, previews, members and submissions.
type RoomHandler struct {
	members  repositories.MembershipRepository
	messages repositories.MessageRepository
	gateway  MessageGateway
	audit    *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(members repositories.MembershipRepository, messages repositories.MessageRepository, gateway MessageGateway, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{
		members:  members,
		messages: messages,
		gateway:  gateway,
		audit:    audit,
	}
}

// GetRoomHistory returns a room's messages in ascending timestamp order.
func (h *RoomHandler) GetRoomHistory(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if !h.requireMember(c, roomID, userID) {
		return
	}

	msgs, err := h.messages.HistoryByRoom(c.Request.Context(), roomID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetRoomPreviews returns the latest message per requested room.
func (h *RoomHandler) GetRoomPreviews(c *gin.Context) {
	raw := c.Query("room_ids")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room_ids required"})
		return
	}

	var requested []int
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id list"})
			return
		}
		requested = append(requested, id)
	}

	// Previews are limited to rooms the caller belongs to; requested rooms
	// the caller is not a member of are dropped, not errored.
	userID := c.GetInt("userID")
	roomIDs := make([]int, 0, len(requested))
	for _, id := range requested {
		_, err := h.members.MemberName(c.Request.Context(), id, userID)
		if errors.Is(err, repositories.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
			return
		}
		roomIDs = append(roomIDs, id)
	}

	previews, err := h.messages.LatestByRooms(c.Request.Context(), roomIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load previews"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"previews": previews})
}

// GetRoomForPost resolves the room attached to a trip post.
func (h *RoomHandler) GetRoomForPost(c *gin.Context) {
	postID, err := strconv.Atoi(c.Param("post_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	roomID, err := h.members.RoomIDForPost(c.Request.Context(), postID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID})
}

// GetRoomMembers returns the current participant set of a room.
func (h *RoomHandler) GetRoomMembers(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if !h.requireMember(c, roomID, c.GetInt("userID")) {
		return
	}

	members, err := h.members.MembersOf(c.Request.Context(), roomID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

// PostImageMessage accepts a multipart image upload and submits an IMAGE
// message through the gateway.
func (h *RoomHandler) PostImageMessage(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	userName := c.GetString("userName")
	if !h.requireMember(c, roomID, userID) {
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image"})
		return
	}

	msg, err := h.gateway.Submit(c.Request.Context(), ingest.SubmitRequest{
		RoomID:           roomID,
		SenderID:         userID,
		SenderName:       userName,
		Kind:             models.KindImage,
		Image:            data,
		ImageContentType: header.Header.Get("Content-Type"),
	})
	h.respondSubmission(c, msg, err, "Image message sent")
}

// JoinRoom announces the authenticated user entering the room.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	msg, err := h.gateway.SendJoinMessage(c.Request.Context(), roomID, c.GetInt("userID"))
	h.respondSubmission(c, msg, err, "Join announced")
}

// LeaveRoom announces the authenticated user leaving the room. The
// membership row is removed by the application service after this call.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	msg, err := h.gateway.SendLeaveMessage(c.Request.Context(), roomID, c.GetInt("userID"))
	h.respondSubmission(c, msg, err, "Leave announced")
}

// respondSubmission maps gateway errors onto HTTP statuses. A degraded
// delivery still answers with the stored message: the sender's message is
// durable even when real-time fan-out lags.
func (h *RoomHandler) respondSubmission(c *gin.Context, msg models.ChatMessage, err error, auditText string) {
	var uploadErr *ingest.AssetUploadError
	var degraded *ingest.DeliveryDegradedError
	switch {
	case err == nil:
		h.emitAudit(c, "INFO", auditText)
		c.JSON(http.StatusCreated, msg)
	case errors.Is(err, ingest.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.As(err, &uploadErr):
		h.emitAudit(c, "ERROR", "asset upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
	case errors.As(err, &degraded):
		h.emitAudit(c, "WARN", "delivery degraded")
		c.JSON(http.StatusAccepted, gin.H{"message": degraded.Message, "warning": "stored but delivery delayed"})
	default:
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit message"})
	}
}

func (h *RoomHandler) requireMember(c *gin.Context, roomID, userID int) bool {
	_, err := h.members.MemberName(c.Request.Context(), roomID, userID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return false
	}
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	return true
}

func (h *RoomHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func roomIDParam(c *gin.Context) (int, bool) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return roomID, true
}
