package util

import (
	"github.com/gin-gonic/gin"
)

// GetUserIDFromContext extracts the user ID from the Gin context.
// Returns the user ID and true if found, or empty string and false if not authenticated.
// If the user is not authenticated, it automatically responds with 401 Unauthorized.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		RespondUnauthorized(c)
		return "", false
	}
	userIDStr, ok := userID.(string)
	if !ok {
		RespondInternalError(c, "invalid session identity")
		return "", false
	}
	return userIDStr, true
}

// GetCommunityIDFromContext extracts the session's community ID from the Gin
// context. The auth middleware sets it from the JWT; without it, community
// scoped routes cannot resolve membership and respond 401.
func GetCommunityIDFromContext(c *gin.Context) (string, bool) {
	communityID, exists := c.Get("community_id")
	if !exists {
		RespondUnauthorized(c)
		return "", false
	}
	idStr, ok := communityID.(string)
	if !ok || idStr == "" {
		RespondUnauthorized(c, "no community in session")
		return "", false
	}
	return idStr, true
}

// GetRolesFromContext returns the caller's host role IDs, empty when none.
func GetRolesFromContext(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return nil
	}
	roleSlice, ok := roles.([]string)
	if !ok {
		return nil
	}
	return roleSlice
}

// IsAdminFromContext reports whether the session carries the community-admin
// flag.
func IsAdminFromContext(c *gin.Context) bool {
	isAdmin, exists := c.Get("is_admin")
	if !exists {
		return false
	}
	flag, ok := isAdmin.(bool)
	return ok && flag
}
