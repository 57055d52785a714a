package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"venuepos/pkg/logger"
)

// Logger emits one access-log line per request once the handler chain
// finishes. Trace, request and venue ids ride in through the scope that
// Trace() seeded, so the fields here stay request-shaped.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			fields = append(fields, "query", query)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "errors", errs.String())
		}

		log.WithContext(c.Request.Context()).Infow("request served", fields...)
	}
}
