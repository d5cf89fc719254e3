package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa/internal/logging"
	"docqa/internal/pkg/jwtutil"
	"docqa/internal/transport/http/response"
)

const ContextUsernameKey = "username"

// AuthJWT accepts "Bearer <token>" with a case-insensitive scheme and tags
// the request logger with the token subject.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		}

		const prefix = "Bearer "
		if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			return
		}

		token := strings.TrimSpace(authHeader[len(prefix):])
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			return
		}

		c.Set(ContextUsernameKey, claims.Username)
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(logging.WithLogger(ctx, logging.FromContext(ctx).With("user", claims.Username)))
		c.Next()
	}
}
