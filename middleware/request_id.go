package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextRequestIDKey holds the correlation id that utils.Ginzap logs.
const ContextRequestIDKey = "request_id"

// RequestID ensures every request has a correlation id, reusing X-Request-ID when the caller sent one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Next()
	}
}
