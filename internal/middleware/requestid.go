package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID     = "X-Request-ID"
	contextKeyRequestID = "request_id"
)

// RequestID assigns a correlation id to every request, honoring one
// supplied by an upstream proxy. Fatal errors are logged under this id
// while the response body stays opaque.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// GetRequestID reads the correlation id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
