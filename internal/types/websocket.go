package types

// MessageType defines the type of a dashboard push message
type MessageType string

const (
	ConnectionStatus MessageType = "connection_status"
	StatusUpdate     MessageType = "status_update"
	Error            MessageType = "error"
	// Replay data messages
	CandlesReset  MessageType = "candles_reset"
	CandleUpdate  MessageType = "candle_update"
	SessionGap    MessageType = "session_gap"
	ReplayError   MessageType = "replay_error"
	SessionStatus MessageType = "session_status"
	// Order messages
	OrderPlaced     MessageType = "order_placed"
	OrderFilled     MessageType = "order_filled"
	OrderCancelled  MessageType = "order_cancelled"
	PositionOpened  MessageType = "position_opened"
	PositionClosed  MessageType = "position_closed"
	PositionsMarked MessageType = "positions_marked"
	// Session control messages sent by dashboard clients
	SessionSetParams MessageType = "session_control_set_params"
	SessionPlay      MessageType = "session_control_play"
	SessionPause     MessageType = "session_control_pause"
	SessionStop      MessageType = "session_control_stop"
	SessionReconnect MessageType = "session_control_reconnect"
	SessionGetStatus MessageType = "session_control_get_status"
	// Order control messages sent by dashboard clients
	OrderPlace    MessageType = "order_place"
	OrderCancel   MessageType = "order_cancel"
	PositionClose MessageType = "position_close"
	// Control replies
	SessionControlResponse MessageType = "session_control_response"
	SessionControlError    MessageType = "session_control_error"
	OrderControlResponse   MessageType = "order_control_response"
	OrderControlError      MessageType = "order_control_error"
)

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

// ConnectionStatusData represents connection status message data
type ConnectionStatusData struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
