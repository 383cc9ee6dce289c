package websocket

import (
	"errors"

	tradingEngine "chronotick/internal/engines/trading"
	"chronotick/internal/services"
	"chronotick/internal/types"
)

// OrderEventHandlerImpl handles order-related WebSocket events
type OrderEventHandlerImpl struct {
	orderService *services.OrderService
}

// NewOrderEventHandler creates a new order event handler
func NewOrderEventHandler(orderService *services.OrderService) *OrderEventHandlerImpl {
	return &OrderEventHandlerImpl{
		orderService: orderService,
	}
}

// HandleMessage handles order control messages
func (h *OrderEventHandlerImpl) HandleMessage(client *Client, message types.WebSocketMessage) error {
	switch message.Type {
	case types.OrderPlace:
		return h.handlePlaceOrder(client, message.Data)
	case types.OrderCancel:
		return h.handleCancelOrder(client, message.Data)
	case types.PositionClose:
		return h.handleClosePosition(client, message.Data)
	default:
		return h.sendOrderResponse(client, false, "Unknown order message", nil, "Unknown message type")
	}
}

// handlePlaceOrder handles order placement requests
func (h *OrderEventHandlerImpl) handlePlaceOrder(client *Client, data interface{}) error {
	var req tradingEngine.OrderRequest
	if err := decodeData(data, &req); err != nil {
		return h.sendOrderResponse(client, false, "Invalid order data", nil, err.Error())
	}

	order, position, err := h.orderService.PlaceOrder(req)
	if err != nil {
		message := "Failed to place order"
		if errors.Is(err, tradingEngine.ErrValidation) {
			message = "Order rejected"
		}
		return h.sendOrderResponse(client, false, message, nil, err.Error())
	}

	responseData := map[string]interface{}{
		"order": order,
	}
	if position != nil {
		responseData["position"] = position
	}
	return h.sendOrderResponse(client, true, "Order placed successfully", responseData, "")
}

// handleCancelOrder handles order cancellation requests
func (h *OrderEventHandlerImpl) handleCancelOrder(client *Client, data interface{}) error {
	var req OrderCancelData
	if err := decodeData(data, &req); err != nil {
		return h.sendOrderResponse(client, false, "Invalid cancel data", nil, err.Error())
	}

	order, err := h.orderService.CancelOrder(req.OrderID)
	if err != nil {
		return h.sendOrderResponse(client, false, "Failed to cancel order", nil, err.Error())
	}
	return h.sendOrderResponse(client, true, "Order cancelled", map[string]interface{}{"order": order}, "")
}

func (h *OrderEventHandlerImpl) handleClosePosition(client *Client, data interface{}) error {
	var req PositionCloseData
	if err := decodeData(data, &req); err != nil {
		return h.sendOrderResponse(client, false, "Invalid close data", nil, err.Error())
	}

	position, err := h.orderService.ClosePosition(req.PositionID)
	if err != nil {
		return h.sendOrderResponse(client, false, "Failed to close position", nil, err.Error())
	}
	return h.sendOrderResponse(client, true, "Position closed", map[string]interface{}{"position": position}, "")
}

// sendOrderResponse sends an order control response back to the client
func (h *OrderEventHandlerImpl) sendOrderResponse(client *Client, success bool, message string, data interface{}, errorMsg string) error {
	responseMsgType := types.OrderControlResponse
	if !success {
		responseMsgType = types.OrderControlError
	}

	client.SendMessage(types.WebSocketMessage{
		Type: responseMsgType,
		Data: ControlResponse{
			Success: success,
			Message: message,
			Data:    data,
			Error:   errorMsg,
		},
	})
	return nil
}
