package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"chronotick/internal/types"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client represents a dashboard WebSocket client
type Client struct {
	Conn           *websocket.Conn
	Send           chan []byte
	Hub            *Hub
	ID             string
	SessionHandler SessionEventHandler
	OrderHandler   OrderEventHandler

	sendMu sync.Mutex
	closed bool
}

// SessionEventHandler interface for handling session control events
type SessionEventHandler interface {
	HandleMessage(client *Client, message types.WebSocketMessage) error
}

// OrderEventHandler interface for handling order events
type OrderEventHandler interface {
	HandleMessage(client *Client, message types.WebSocketMessage) error
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, sessionHandler SessionEventHandler, orderHandler OrderEventHandler) *Client {
	return &Client{
		Conn:           conn,
		Send:           make(chan []byte, sendBuffer),
		Hub:            hub,
		ID:             generateClientID(),
		SessionHandler: sessionHandler,
		OrderHandler:   orderHandler,
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] WebSocket error for client %s: %v", c.ID, err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[ws] WebSocket write error for client %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// handleMessage routes messages to appropriate handlers based on message type
func (c *Client) handleMessage(messageBytes []byte) {
	var message types.WebSocketMessage
	if err := json.Unmarshal(messageBytes, &message); err != nil {
		log.Printf("[ws] Error parsing message from client %s: %v", c.ID, err)
		c.SendError("Invalid message format", err.Error())
		return
	}

	switch message.Type {
	case types.SessionSetParams, types.SessionPlay, types.SessionPause, types.SessionStop,
		types.SessionReconnect, types.SessionGetStatus:
		if c.SessionHandler != nil {
			if err := c.SessionHandler.HandleMessage(c, message); err != nil {
				log.Printf("[ws] Session handler error for client %s: %v", c.ID, err)
			}
		} else {
			c.SendError("Session handler not available", "Internal error")
		}

	case types.OrderPlace, types.OrderCancel, types.PositionClose:
		if c.OrderHandler != nil {
			if err := c.OrderHandler.HandleMessage(c, message); err != nil {
				log.Printf("[ws] Order handler error for client %s: %v", c.ID, err)
			}
		} else {
			c.SendError("Order handler not available", "Internal error")
		}

	default:
		log.Printf("[ws] Unknown message type from client %s: %s", c.ID, message.Type)
		c.SendError("Unknown message type", string(message.Type))
	}
}

// SendError sends an error response to the client
func (c *Client) SendError(message, errorMsg string) {
	c.SendMessage(types.WebSocketMessage{
		Type: types.Error,
		Data: ControlResponse{
			Success: false,
			Message: message,
			Error:   errorMsg,
		},
	})
}

// SendMessage sends a WebSocket message to the client
func (c *Client) SendMessage(message types.WebSocketMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[ws] Error marshaling message for client %s: %v", c.ID, err)
		return
	}

	if !c.trySend(data) {
		log.Printf("[ws] Client %s send channel full or closed, dropping message", c.ID)
	}
}

func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel once. Only the hub calls it.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
