package handlers

import (
	"errors"
	"net/http"

	tradingEngine "chronotick/internal/engines/trading"
	"chronotick/internal/models"
	"chronotick/internal/services"

	"github.com/gin-gonic/gin"
)

// OrderHandler handles order and position HTTP requests
type OrderHandler struct {
	orderService     *services.OrderService
	portfolioService *services.PortfolioService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *services.OrderService, portfolioService *services.PortfolioService) *OrderHandler {
	return &OrderHandler{
		orderService:     orderService,
		portfolioService: portfolioService,
	}
}

// PlaceOrder handles POST /api/v1/orders
func (oh *OrderHandler) PlaceOrder(c *gin.Context) {
	var req tradingEngine.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid order request", err)
		return
	}

	order, position, err := oh.orderService.PlaceOrder(req)
	if err != nil {
		if errors.Is(err, tradingEngine.ErrValidation) {
			respondError(c, http.StatusBadRequest, "order rejected", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to place order", err)
		return
	}

	response := gin.H{"order": order}
	if position != nil {
		response["position"] = position
	}
	c.JSON(http.StatusCreated, response)
}

// GetOrders handles GET /api/v1/orders, optionally filtered by ?status=
func (oh *OrderHandler) GetOrders(c *gin.Context) {
	orders := oh.orderService.GetOrders(models.OrderStatus(c.Query("status")))
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// CancelOrder handles DELETE /api/v1/orders/:id
func (oh *OrderHandler) CancelOrder(c *gin.Context) {
	order, err := oh.orderService.CancelOrder(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// GetPositions handles GET /api/v1/positions, optionally filtered by ?status=
func (oh *OrderHandler) GetPositions(c *gin.Context) {
	positions := oh.orderService.GetPositions(models.PositionStatus(c.Query("status")))
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

// ClosePosition handles POST /api/v1/positions/:id/close
func (oh *OrderHandler) ClosePosition(c *gin.Context) {
	position, err := oh.orderService.ClosePosition(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": position})
}

// GetPortfolio handles GET /api/v1/portfolio, optionally for one ?symbol=
func (oh *OrderHandler) GetPortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, oh.portfolioService.GetPortfolio(c.Query("symbol")))
}
