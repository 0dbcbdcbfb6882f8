package middleware

import (
	"license-authority/pkg/errutil"
	"license-authority/pkg/response"
	"license-authority/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const HeaderAPIKey = "X-API-Key"

// APIKey admits requests whose X-API-Key matches the argon2id hash.
func APIKey(hash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderAPIKey)
		if key == "" {
			response.Fail(c, errutil.Unauthorized("API key is required", nil, errutil.WithReason("MissingAPIKey")))
			return
		}

		ok, err := security.VerifySecret(key, hash)
		if err != nil {
			zap.L().Error("api key hash is not usable", zap.Error(err))
			response.Fail(c, errutil.Internal("internal error", err))
			return
		}
		if !ok {
			zap.L().Warn("invalid api key", zap.String("client_ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
			response.Fail(c, errutil.Unauthorized("Invalid API key", nil, errutil.WithReason("InvalidAPIKey")))
			return
		}

		c.Next()
	}
}
