package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/flotob/curia-sub002/internal/errors"
)

// RequireAdmin ensures the request is authenticated and the caller is an admin.
// Admin status is resolved from the session claims (set by the auth middleware),
// so it reflects the caller's roles in the current community without a lookup.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.Unauthorized("authentication required"))
			return
		}
		if id, ok := userID.(string); !ok || id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.Unauthorized("invalid session identity"))
			return
		}

		if !c.GetBool("is_admin") {
			c.AbortWithStatusJSON(http.StatusForbidden, apperrors.Forbidden("admin access required"))
			return
		}

		c.Next()
	}
}
