package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appctx "venuepos/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace seeds the request scope for everything downstream: trace and
// request ids from the inbound headers (minted when absent) plus the
// venue from the route path. Both ids are echoed back in the response
// so callers can quote them in bug reports.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		scope := &appctx.RequestScope{
			TraceID:   traceID,
			RequestID: requestID,
			VenueID:   c.Param("venueId"),
		}
		c.Request = c.Request.WithContext(appctx.WithScope(c.Request.Context(), scope))

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
