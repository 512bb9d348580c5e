package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderRequestID carries the correlation id of a request in both directions.
const HeaderRequestID = "X-Request-ID"

// ContextRequestID is the key for the request id in gin context.
const ContextRequestID = "request_id"

// Logger assigns a request id and writes one access log line per request. 5xx responses log
// at error level and 4xx at warn; health probes are not logged.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(ContextRequestID, reqID)
		c.Header(HeaderRequestID, reqID)

		c.Next()

		if c.FullPath() == "/health" {
			return
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		}
		if id, ok := c.Get(ContextUserID); ok {
			fields = append(fields, zap.Any("user_id", id))
		}
		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
