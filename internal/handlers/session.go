package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Carl4WebDev/vet-user/internal/directory"
	"github.com/Carl4WebDev/vet-user/internal/models"
	"github.com/Carl4WebDev/vet-user/internal/session"
	"github.com/Carl4WebDev/vet-user/internal/telemetry"
	"github.com/Carl4WebDev/vet-user/internal/transport"
)

// SessionHandler exposes the chat session to the portal UI.
type SessionHandler struct {
	controller *session.Controller
	unread     session.UnreadStore
	audit      *telemetry.AuditEmitter
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(controller *session.Controller, unread session.UnreadStore, audit *telemetry.AuditEmitter) *SessionHandler {
	return &SessionHandler{controller: controller, unread: unread, audit: audit}
}

// GetSession reports the session lifecycle state and connection status.
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"phase":       h.controller.Phase(),
		"user_id":     h.controller.SelfID(),
		"active_peer": h.controller.ActivePeer(),
		"connected":   h.controller.Connected(),
	})
}

// ListConversations returns the directory merged with previews and unread
// counts; ?q= applies a case-insensitive name filter.
func (h *SessionHandler) ListConversations(c *gin.Context) {
	peers := directory.Filter(h.controller.Peers(), c.Query("q"))

	type conversationResponse struct {
		models.ConversationPeer
		Unread int `json:"unread"`
	}

	responses := make([]conversationResponse, 0, len(peers))
	for _, peer := range peers {
		responses = append(responses, conversationResponse{
			ConversationPeer: peer,
			Unread:           h.unread.Get(peer.ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": responses})
}

// OpenConversation makes a peer the active conversation.
func (h *SessionHandler) OpenConversation(c *gin.Context) {
	peerID := c.Param("peer_id")

	if err := h.controller.Select(peerID); err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownPeer):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown peer"})
		case errors.Is(err, session.ErrNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "session not ready"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open conversation"})
		}
		return
	}

	userID := h.controller.SelfID()
	h.audit.Emit(c.Request.Context(), "INFO", "conversation opened: "+peerID, requestIDFromContext(c), &userID)

	c.JSON(http.StatusOK, gin.H{
		"active_peer": peerID,
		"messages":    h.controller.History(),
	})
}

// GetMessages returns the active conversation's history.
func (h *SessionHandler) GetMessages(c *gin.Context) {
	if h.controller.ActivePeer() == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": h.controller.History()})
}

// PostMessage publishes a message to the active peer.
func (h *SessionHandler) PostMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.controller.Send(req.Text); err != nil {
		switch {
		case errors.Is(err, session.ErrNoActivePeer):
			c.JSON(http.StatusConflict, gin.H{"error": "no active conversation"})
		case errors.Is(err, transport.ErrNotConnected):
			c.JSON(http.StatusConflict, gin.H{"error": "not connected"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// GetUnread returns per-peer unread counts and the derived total.
func (h *SessionHandler) GetUnread(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"counts": h.unread.Snapshot(),
		"total":  h.unread.Total(),
	})
}
