package interfaces

import "chronotick/internal/types"

// Broadcaster pushes messages to every connected dashboard client.
// Declared here to avoid import cycles between engines and handlers.
type Broadcaster interface {
	BroadcastMessage(msgType types.MessageType, data interface{})
}
