package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger emits one structured line per request. Server errors log at Error,
// client errors at Warn, everything else at Info; the correlation ID and the
// authenticated user (when present) are attached so upload runs can be traced
// end to end
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		requestLogger := logger
		if correlationID := GetCorrelationID(c); correlationID != "" {
			requestLogger = requestLogger.With("correlation_id", correlationID)
		}

		c.Next()

		if u := GetUser(c); u != nil {
			requestLogger = requestLogger.With("user_id", u.ID.String())
		}

		if raw != "" {
			path = path + "?" + raw
		}

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"bytes", c.Writer.Size(),
			"user_agent", c.Request.UserAgent(),
		}

		switch {
		case status >= 500:
			requestLogger.Error("HTTP request", attrs...)
		case status >= 400:
			requestLogger.Warn("HTTP request", attrs...)
		default:
			requestLogger.Info("HTTP request", attrs...)
		}
	}
}
