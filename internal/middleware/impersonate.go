package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/database"
	apperrors "github.com/flotob/curia-sub002/internal/errors"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/models"
)

// AdminImpersonationMiddleware checks if an admin is trying to impersonate another user
// If X-Impersonate-User-Id header is provided, validates that:
// 1. The authenticated user is an admin
// 2. The impersonated user exists and belongs to the caller's community
// 3. Sets the impersonated user context
//
// The impersonated session never carries admin rights.
func AdminImpersonationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		impersonateUserID := c.GetHeader("X-Impersonate-User-Id")

		// If no impersonation header, continue normally
		if impersonateUserID == "" {
			c.Next()
			return
		}

		// Get authenticated user from context (set by auth middleware)
		authenticatedUserID, exists := c.Get("user_id")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.Unauthorized("authentication required"))
			return
		}

		// Check if authenticated user is admin
		if !c.GetBool("is_admin") {
			c.AbortWithStatusJSON(http.StatusForbidden, apperrors.Forbidden("only admins can impersonate other users"))
			return
		}

		// Fetch the impersonated user
		var impersonatedUser models.User
		if err := database.DB.Where("id = ?", impersonateUserID).First(&impersonatedUser).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, apperrors.NotFound("impersonated user"))
			return
		}

		// The impersonated user must be a member of the caller's community
		communityID := c.GetString("community_id")
		var membership models.UserCommunity
		if err := database.DB.Where("user_id = ? AND community_id = ?", impersonatedUser.ID, communityID).First(&membership).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, apperrors.NotFound("community membership for impersonated user"))
			return
		}

		// Replace user context with impersonated user
		c.Set("user_id", impersonatedUser.ID)
		c.Set("user_name", impersonatedUser.Name)
		c.Set("is_admin", false)

		// Log impersonation for audit trail
		logger.Log.Info("Admin impersonation initiated",
			zap.String("admin_id", authenticatedUserID.(string)),
			zap.String("impersonated_user_id", impersonatedUser.ID),
			logger.WithCommunityID(communityID),
			zap.String("request_method", c.Request.Method),
			zap.String("request_path", c.Request.URL.Path),
		)

		c.Next()
	}
}
