package websocket

import (
	"chronotick/internal/engines/session"
	"chronotick/internal/models"
	"chronotick/internal/types"
)

// SessionControl is the part of the session controller exposed to clients
type SessionControl interface {
	SetParams(params models.ReplaySessionParams) error
	SetEnabled(enabled bool)
	SetPlaying(playing bool)
	CloseSocket()
	Reconnect()
	Status() session.Status
}

// SessionEventHandlerImpl handles session control WebSocket events
type SessionEventHandlerImpl struct {
	controller SessionControl
}

// NewSessionEventHandler creates a new session event handler
func NewSessionEventHandler(controller SessionControl) *SessionEventHandlerImpl {
	return &SessionEventHandlerImpl{controller: controller}
}

// HandleMessage handles session control messages
func (h *SessionEventHandlerImpl) HandleMessage(client *Client, message types.WebSocketMessage) error {
	switch message.Type {
	case types.SessionSetParams:
		return h.handleSetParams(client, message.Data)
	case types.SessionPlay:
		h.controller.SetPlaying(true)
		return h.sendResponse(client, "Playing")
	case types.SessionPause:
		h.controller.SetPlaying(false)
		return h.sendResponse(client, "Paused")
	case types.SessionStop:
		h.controller.CloseSocket()
		return h.sendResponse(client, "Stopped")
	case types.SessionReconnect:
		h.controller.Reconnect()
		return h.sendResponse(client, "Reconnecting")
	case types.SessionGetStatus:
		return h.sendResponse(client, "Status")
	default:
		return h.sendErrorResponse(client, "Unknown session message", "Unknown message type")
	}
}

func (h *SessionEventHandlerImpl) handleSetParams(client *Client, data interface{}) error {
	var params SessionParamsData
	if err := decodeData(data, &params); err != nil {
		return h.sendErrorResponse(client, "Invalid session params", err.Error())
	}

	if err := h.controller.SetParams(params.ReplaySessionParams); err != nil {
		return h.sendErrorResponse(client, "Invalid session params", err.Error())
	}
	if params.Enabled != nil {
		h.controller.SetEnabled(*params.Enabled)
	}
	return h.sendResponse(client, "Session updated")
}

// sendResponse replies with the controller status after the action
func (h *SessionEventHandlerImpl) sendResponse(client *Client, message string) error {
	client.SendMessage(types.WebSocketMessage{
		Type: types.SessionControlResponse,
		Data: ControlResponse{
			Success: true,
			Message: message,
			Data:    h.controller.Status(),
		},
	})
	return nil
}

func (h *SessionEventHandlerImpl) sendErrorResponse(client *Client, message string, errorMsg string) error {
	client.SendMessage(types.WebSocketMessage{
		Type: types.SessionControlError,
		Data: ControlResponse{
			Success: false,
			Message: message,
			Error:   errorMsg,
		},
	})
	return nil
}
