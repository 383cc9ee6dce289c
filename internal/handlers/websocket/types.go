package websocket

import (
	"chronotick/internal/models"
)

// SessionParamsData is the payload of session_control_set_params
type SessionParamsData struct {
	models.ReplaySessionParams
	Enabled *bool `json:"enabled,omitempty"`
}

// OrderCancelData is the payload of order_cancel
type OrderCancelData struct {
	OrderID string `json:"orderId"`
}

// PositionCloseData is the payload of position_close
type PositionCloseData struct {
	PositionID string `json:"positionId"`
}

// ControlResponse is the reply to a client control message
type ControlResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
