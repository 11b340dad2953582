package middleware

import (
	"errors"
	"net/http"

	"kickback-engine/pkg/errutil"
	"kickback-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error. Errors that are not
// errutil.BaseError become a 500 without leaking their text.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			status := be.Code.HTTPStatus()
			if status >= http.StatusInternalServerError {
				logger.FromContext(c.Request.Context()).Error("request failed",
					zap.String("path", c.FullPath()),
					zap.Error(last.Err),
				)
				c.JSON(status, gin.H{"error": gin.H{"code": be.Code, "message": be.Message, "details": be.Details}})
				return
			}
			c.JSON(status, be.JSON())
			return
		}

		logger.FromContext(c.Request.Context()).Error("unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(last.Err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    errutil.StatusInternal,
			"message": "internal error",
		}})
	}
}
