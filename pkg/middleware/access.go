package middleware

import (
	"license-authority/pkg/accesscontrol"
	"license-authority/pkg/errutil"
	"license-authority/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequirePermission lets the verified caller through when the enforcer grants
// it act on obj. It must run after Signature.
func RequirePermission(e accesscontrol.Enforcer, obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, ok := AuthorityFromContext(c.Request.Context())
		if !ok {
			response.Fail(c, errutil.Unauthorized("Authority key and signature are required", nil,
				errutil.WithReason("MissingSignature")))
			return
		}

		allowed, err := e.Enforce(sub, obj, act)
		if err != nil {
			zap.L().Error("access control check failed", zap.String("sub", sub), zap.String("act", act), zap.Error(err))
			response.Fail(c, errutil.Internal("internal error", err))
			return
		}
		if !allowed {
			response.Fail(c, errutil.Forbidden("Only the authorized service wallet can perform this action.", nil,
				errutil.WithReason("UnauthorizedAuthority")))
			return
		}

		c.Next()
	}
}
