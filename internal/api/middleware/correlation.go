package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader is the HTTP header carrying the request's correlation ID
	CorrelationIDHeader = "X-Correlation-ID"

	// CorrelationIDKey is the gin context key the correlation ID is stored under
	CorrelationIDKey = "correlation_id"
)

// CorrelationID tags every request with an identifier so one upload run can be
// traced through the parse/classify/persist stages. A client-supplied ID is
// honored; otherwise a fresh one is generated. The ID is echoed back in the
// response header either way
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}

		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// GetCorrelationID retrieves the correlation ID from the gin context if present
func GetCorrelationID(c *gin.Context) string {
	if v, exists := c.Get(CorrelationIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
