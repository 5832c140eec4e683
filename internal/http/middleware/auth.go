// README: Bearer token auth middleware; puts the caller uid and role claim on the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courier/internal/infra"
	"courier/internal/logger"
)

const (
	ctxCallerUID  = "caller_uid"
	ctxCallerRole = "caller_role"
)

func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		verified, err := verifier.VerifyIDToken(c.Request.Context(), token)
		if err != nil || verified == nil || verified.UID == "" {
			if err != nil {
				logger.Log.Debug("token rejected", zap.Error(err))
			}
			abortUnauthorized(c, "invalid token")
			return
		}
		c.Set(ctxCallerUID, verified.UID)
		c.Set(ctxCallerRole, verified.Role())
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthorized"})
}

// CallerUID returns the verified uid, or "" on unauthenticated routes.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

// CallerRole returns the token's role claim. It is a hint only; services
// check the stored role.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxCallerRole)
}
