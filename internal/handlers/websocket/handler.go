package websocket

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// OriginChecker decides whether a dashboard origin may open the push channel
type OriginChecker func(r *http.Request) bool

// AllowAllOrigins accepts every origin, matching the permissive CORS policy
// of the REST API
func AllowAllOrigins(*http.Request) bool { return true }

// WebSocketHandler upgrades dashboard connections and attaches them to the
// hub with the session and order control handlers
type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	session  SessionEventHandler
	orders   OrderEventHandler
}

// HandlerOption customizes a WebSocketHandler
type HandlerOption func(*WebSocketHandler)

// WithOriginCheck replaces the origin policy
func WithOriginCheck(check OriginChecker) HandlerOption {
	return func(wh *WebSocketHandler) {
		wh.upgrader.CheckOrigin = check
	}
}

// NewWebSocketHandler creates a handler for hub. The caller runs the hub.
func NewWebSocketHandler(hub *Hub, opts ...HandlerOption) *WebSocketHandler {
	wh := &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     AllowAllOrigins,
		},
	}
	for _, opt := range opts {
		opt(wh)
	}
	return wh
}

// SetHandlers routes inbound control messages. A nil handler makes the
// client answer that kind of message with an error.
func (wh *WebSocketHandler) SetHandlers(session SessionEventHandler, orders OrderEventHandler) {
	wh.session = session
	wh.orders = orders
}

// GET /api/v1/ws
func (wh *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	// Upgrade writes the HTTP error response itself on failure
	conn, err := wh.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ws] Upgrade rejected for %s: %v", c.Request.RemoteAddr, err)
		return
	}

	client := NewClient(conn, wh.hub, wh.session, wh.orders)
	wh.hub.RegisterClient(client)
	client.Start()
}
