package server

import (
	"time"

	"github.com/gin-gonic/gin"
)

// respond writes a success envelope: body plus "success": true and an
// RFC3339 timestamp.
func respond(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	c.JSON(status, body)
}

// respondError writes a failure envelope with a generic message.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success":   false,
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
