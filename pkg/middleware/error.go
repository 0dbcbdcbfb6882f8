package middleware

import (
	"errors"

	"license-authority/pkg/errutil"
	"license-authority/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error a handler attached with c.Error.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var be errutil.BaseError
		if !errors.As(err, &be) || be.Code == errutil.StatusInternal {
			zap.L().Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		}
		response.Fail(c, err)
	}
}
