package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GetCurrentTimestamp returns current timestamp in milliseconds
func GetCurrentTimestamp() int64 {
	return time.Now().UnixMilli()
}

// generateClientID generates a unique client ID
func generateClientID() string {
	return "client_" + uuid.NewString()[:8]
}

// decodeData re-decodes a generic message payload into a typed struct
func decodeData(data interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
