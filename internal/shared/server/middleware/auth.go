package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"picture-backend/internal/shared/server/respond"
)

// AdminAuth requires "Authorization: Bearer <token>" matching token.
// With no token the routes stay open only when allowOpen is set; otherwise every request
// is refused.
func AdminAuth(token string, allowOpen bool) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			if allowOpen {
				c.Next()
				return
			}
			respond.Error(c, http.StatusServiceUnavailable, "admin_disabled", "admin access is not configured", nil)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		got := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		c.Next()
	}
}
