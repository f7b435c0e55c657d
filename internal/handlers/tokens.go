package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tripchat-service/internal/telemetry"
)

// TokenRegistry is the device-token surface the HTTP layer depends on.
type TokenRegistry interface {
	RegisterToken(ctx context.Context, userID int, token string) error
	UnregisterToken(ctx context.Context, token string) error
	UnregisterAllForUser(ctx context.Context, userID int) error
}

// TokenHandler manages device push-token registration.
type TokenHandler struct {
	registry TokenRegistry
	audit    *telemetry.AuditEmitter
}

// NewTokenHandler builds a TokenHandler.
func NewTokenHandler(registry TokenRegistry, audit *telemetry.AuditEmitter) *TokenHandler {
	return &TokenHandler{registry: registry, audit: audit}
}

// RegisterToken stores a push token for the authenticated user.
// Registering the same token twice is a no-op.
func (h *TokenHandler) RegisterToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if err := h.registry.RegisterToken(c.Request.Context(), userID, req.Token); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register token"})
		return
	}

	h.emitAudit(c, "INFO", "Push token registered")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "token registered"})
}

// UnregisterToken removes one token (explicit device unregistration).
func (h *TokenHandler) UnregisterToken(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}

	if err := h.registry.UnregisterToken(c.Request.Context(), token); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete token"})
		return
	}

	h.emitAudit(c, "INFO", "Push token deleted")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "token deleted"})
}

// UnregisterAllForUser removes every token a user holds (logout-all).
func (h *TokenHandler) UnregisterAllForUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.registry.UnregisterAllForUser(c.Request.Context(), userID); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete tokens"})
		return
	}

	h.emitAudit(c, "INFO", "All push tokens deleted")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "all tokens deleted"})
}

func (h *TokenHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
