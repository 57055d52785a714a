package middleware

import (
	"github.com/gin-gonic/gin"

	"venuepos/internal/core/apperror"
	appctx "venuepos/internal/core/context"
	"venuepos/pkg/logger"
)

// ErrorHandler renders the last error a handler attached as the JSON
// error envelope. AppErrors keep their stable code and details; anything
// else is hidden behind a generic internal error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status := apperror.GetHTTPStatus(err)

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			c.JSON(status, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
			return
		}

		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)

		c.JSON(status, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": appctx.RequestID(c.Request.Context()),
			},
		})
	}
}
