package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/Carl4WebDev/vet-user/internal/identity"
	"github.com/Carl4WebDev/vet-user/internal/observability"
)

// PortalWebSocketHandler upgrades UI connections onto the push channel.
type PortalWebSocketHandler struct {
	hub  *Hub
	auth *identity.Authenticator
}

// NewPortalWebSocketHandler constructs a PortalWebSocketHandler.
func NewPortalWebSocketHandler(hub *Hub, auth *identity.Authenticator) *PortalWebSocketHandler {
	return &PortalWebSocketHandler{hub: hub, auth: auth}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client with the hub.
func (h *PortalWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("portal-gateway/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(conn, info)

	observability.IncWSActive("ui")
	h.hub.publishUIEvent(conn, "ws_connect", "")

	// Keep connection alive and clean up on close. The UI never sends
	// anything meaningful upstream; reads only detect the close.
	go func() {
		defer func() {
			h.hub.publishUIEvent(conn, "ws_disconnect", "")
			h.hub.RemoveClient(conn)
			observability.DecWSActive("ui")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ui", "ws_error")
				}
				return
			}
		}
	}()
}
