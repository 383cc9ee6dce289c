package handlers

import (
	wsHandlers "chronotick/internal/handlers/websocket"

	"github.com/gin-gonic/gin"
)

// Handlers groups the route handlers of the control API
type Handlers struct {
	Health    *HealthHandler
	Market    *MarketHandler
	Session   *SessionHandler
	Order     *OrderHandler
	WebSocket *wsHandlers.WebSocketHandler
}

// RegisterRoutes mounts the control API under /api/v1
func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/health", h.Health.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", h.Health.Health)

		v1.GET("/market/symbols", h.Market.GetSymbols)
		v1.GET("/candles", h.Market.GetCandles)
		v1.GET("/markers", h.Market.GetMarkers)
		v1.GET("/stats", h.Market.GetStats)

		sessionGroup := v1.Group("/session")
		{
			sessionGroup.PUT("", h.Session.SetSession)
			sessionGroup.GET("/status", h.Session.GetStatus)
			sessionGroup.POST("/play", h.Session.Play)
			sessionGroup.POST("/pause", h.Session.Pause)
			sessionGroup.POST("/stop", h.Session.Stop)
			sessionGroup.POST("/reconnect", h.Session.Reconnect)
			sessionGroup.POST("/local-pause", h.Session.SetLocalPause)
		}

		v1.POST("/orders", h.Order.PlaceOrder)
		v1.GET("/orders", h.Order.GetOrders)
		v1.DELETE("/orders/:id", h.Order.CancelOrder)
		v1.GET("/positions", h.Order.GetPositions)
		v1.POST("/positions/:id/close", h.Order.ClosePosition)
		v1.GET("/portfolio", h.Order.GetPortfolio)

		if h.WebSocket != nil {
			v1.GET("/ws", h.WebSocket.HandleWebSocket)
		}
	}
}

// CORSMiddleware allows the dashboard to call the API from another origin
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
