package handlers

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// GetCurrentTimestamp returns the current Unix timestamp in milliseconds
func GetCurrentTimestamp() int64 {
	return time.Now().UnixMilli()
}

// respondError writes the API's error body
func respondError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
		if status >= 500 {
			log.Printf("[api] %s %s: %s: %v", c.Request.Method, c.Request.URL.Path, message, err)
		}
	}
	c.JSON(status, body)
}
