// Package middleware provides the HTTP middleware chain.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"venuepos/internal/core/apperror"
	appctx "venuepos/internal/core/context"
	"venuepos/pkg/logger"
)

// Recovery turns a handler panic into the generic 500 envelope. The
// stack trace goes to the log only, never to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				ctx := c.Request.Context()
				logger.Error(ctx, "panic while serving request",
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", r,
					"stack", string(debug.Stack()),
				)

				_ = c.Error(
					apperror.NewInternal(fmt.Errorf("panic: %v", r)).
						WithDetail("request_id", appctx.RequestID(ctx)),
				)
				c.Abort()
			}
		}()
		c.Next()
	}
}
