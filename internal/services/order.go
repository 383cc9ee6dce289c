package services

import (
	"errors"

	tradingEngine "chronotick/internal/engines/trading"
	"chronotick/internal/models"
)

var (
	ErrOrderNotFound    = errors.New("order not found or not pending")
	ErrPositionNotFound = errors.New("position not found or already closed")
)

// OrderService handles order orchestration for the control API
type OrderService struct {
	executionEngine tradingEngine.OrderExecutionEngineInterface
}

// NewOrderService creates a new order service
func NewOrderService(executionEngine tradingEngine.OrderExecutionEngineInterface) *OrderService {
	return &OrderService{
		executionEngine: executionEngine,
	}
}

// PlaceOrder places an order against the current replay price. The position
// is nil unless the order filled immediately.
func (os *OrderService) PlaceOrder(req tradingEngine.OrderRequest) (*models.Order, *models.Position, error) {
	return os.executionEngine.PlaceOrder(req)
}

// GetOrders lists order history, optionally filtered by status
func (os *OrderService) GetOrders(status models.OrderStatus) []models.Order {
	orders := os.executionEngine.Orders()
	if status == "" {
		return orders
	}

	filtered := make([]models.Order, 0, len(orders))
	for _, order := range orders {
		if order.Status == status {
			filtered = append(filtered, order)
		}
	}
	return filtered
}

// CancelOrder cancels a pending order
func (os *OrderService) CancelOrder(orderID string) (*models.Order, error) {
	order, ok := os.executionEngine.CancelOrder(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetPositions lists positions, optionally filtered by status
func (os *OrderService) GetPositions(status models.PositionStatus) []models.Position {
	positions := os.executionEngine.Positions()
	if status == "" {
		return positions
	}

	filtered := make([]models.Position, 0, len(positions))
	for _, position := range positions {
		if position.Status == status {
			filtered = append(filtered, position)
		}
	}
	return filtered
}

// ClosePosition closes an open position at the current price
func (os *OrderService) ClosePosition(positionID string) (*models.Position, error) {
	position, ok := os.executionEngine.ClosePosition(positionID)
	if !ok {
		return nil, ErrPositionNotFound
	}
	return position, nil
}
