package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"chronotick/internal/types"
)

const broadcastBuffer = 256

// SnapshotFunc returns the state sent to a client right after it connects
type SnapshotFunc func() interface{}

// Hub maintains active dashboard clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	snapshot   SnapshotFunc
	done       chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetSnapshot sets the welcome snapshot sent to new clients. Call before Run.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.snapshot = fn
}

// Run starts the hub and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("[ws] Client %s connected. Total clients: %d", client.ID, total)

			h.welcome(client)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
				log.Printf("[ws] Client %s disconnected. Total clients: %d", client.ID, len(h.clients))
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if !client.trySend(message) {
					// Slow consumer
					client.closeSend()
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) welcome(client *Client) {
	client.SendMessage(types.WebSocketMessage{
		Type: types.ConnectionStatus,
		Data: types.ConnectionStatusData{
			Status:    "connected",
			Message:   "Successfully connected to WebSocket",
			Timestamp: GetCurrentTimestamp(),
		},
	})

	if h.snapshot != nil {
		client.SendMessage(types.WebSocketMessage{
			Type: types.StatusUpdate,
			Data: h.snapshot(),
		})
	}
}

// BroadcastMessage broadcasts a message to all connected clients. It never
// blocks; messages are dropped when the hub is backed up.
func (h *Hub) BroadcastMessage(msgType types.MessageType, data interface{}) {
	message := types.WebSocketMessage{
		Type: msgType,
		Data: data,
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		log.Printf("[ws] Error marshaling WebSocket message: %v", err)
		return
	}

	select {
	case h.broadcast <- jsonData:
	default:
		log.Printf("[ws] Broadcast buffer full, dropping %s message", msgType)
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RegisterClient registers a new client
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

// UnregisterClient unregisters a client
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
