package handlers

import (
	"net/http"

	"chronotick/internal/models"

	"github.com/gin-gonic/gin"
)

// ConnectionReporter reports the replay connection state
type ConnectionReporter interface {
	ConnectionState() models.ConnectionState
}

// ClientCounter reports connected dashboard clients
type ClientCounter interface {
	GetClientCount() int
}

type HealthHandler struct {
	replay  ConnectionReporter
	clients ClientCounter
}

func NewHealthHandler(replay ConnectionReporter, clients ClientCounter) *HealthHandler {
	return &HealthHandler{
		replay:  replay,
		clients: clients,
	}
}

// Health checks the health status of the service. A disconnected replay
// stream is reported but does not make the service unhealthy.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "chronotick",
		"replay":    h.replay.ConnectionState(),
		"clients":   h.clients.GetClientCount(),
		"timestamp": GetCurrentTimestamp(),
	})
}
