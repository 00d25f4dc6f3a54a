package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/flotob/curia-sub002/internal/auth"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/dto"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EstablishSession processes the Common Ground host handshake and
// issues a session token
// POST /api/auth/session
func (h *Handlers) EstablishSession(c *gin.Context) {
	var req auth.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.App().SessionsTotal.WithLabelValues("invalid").Inc()
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.EstablishSession(&req)
	if err != nil {
		metrics.App().SessionsTotal.WithLabelValues("rejected").Inc()
		logger.Log.Warn("Session handshake rejected",
			logger.WithUserID(req.UserID),
			logger.WithCommunityID(req.CommunityID),
			zap.Error(err))
		util.RespondUnauthorized(c, "session handshake rejected")
		return
	}

	metrics.App().SessionsTotal.WithLabelValues("established").Inc()
	c.JSON(http.StatusOK, resp)
}

// AuthMiddleware validates the session token and injects the caller's
// identity into the request context. Tokens arrive as a bearer header
// or, for WebSocket upgrades, a ?token= query param.
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenString = strings.TrimPrefix(header, "Bearer ")
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			util.RespondUnauthorized(c, "no token provided")
			c.Abort()
			return
		}

		claims, err := h.auth.ValidateToken(tokenString)
		if err != nil {
			util.RespondUnauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Set("community_id", claims.CommunityID)
		c.Set("roles", claims.Roles)
		c.Set("is_admin", claims.IsAdmin)
		c.Next()
	}
}

// GetMe returns the current user with their membership in the session
// community
// GET /api/me
func (h *Handlers) GetMe(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	communityID, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return
	}

	user, err := h.auth.GetUser(userID)
	if err != nil {
		util.RespondNotFound(c, "user")
		return
	}

	var membership models.UserCommunity
	if err := database.DB.
		Where("user_id = ? AND community_id = ?", userID, communityID).
		First(&membership).Error; err != nil {
		util.RespondNotFound(c, "membership")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": dto.ToUserDetailResponse(user),
		"membership": gin.H{
			"community_id":     membership.CommunityID,
			"role":             membership.Role,
			"first_visited_at": membership.FirstVisitedAt,
			"last_visited_at":  membership.LastVisitedAt,
			"visit_count":      membership.VisitCount,
		},
		"is_admin": util.IsAdminFromContext(c),
	})
}

// GetMyFriends returns the caller's host-synced friends list
// GET /api/me/friends
func (h *Handlers) GetMyFriends(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit := util.ParseInt(c.Query("limit"), 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := util.ParseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	var total int64
	database.DB.Model(&models.UserFriend{}).Where("user_id = ?", userID).Count(&total)

	var friends []models.UserFriend
	if err := database.DB.
		Where("user_id = ?", userID).
		Order("friend_name ASC").
		Limit(limit).
		Offset(offset).
		Find(&friends).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch friends")
		return
	}

	// Friends with an account here get live presence attached.
	friendIDs := make([]string, len(friends))
	for i, f := range friends {
		friendIDs[i] = f.FriendUserID
	}
	online := map[string]bool{}
	if len(friendIDs) > 0 {
		var users []models.User
		if err := database.DB.
			Select("id", "is_online").
			Where("id IN ?", friendIDs).
			Find(&users).Error; err == nil {
			for _, u := range users {
				online[u.ID] = u.IsOnline
			}
		}
	}

	items := make([]gin.H, len(friends))
	for i, f := range friends {
		items[i] = gin.H{
			"id":        f.FriendUserID,
			"name":      f.FriendName,
			"image_url": f.FriendImageURL,
			"is_online": online[f.FriendUserID],
			"synced_at": f.SyncedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"friends": items,
		"meta": gin.H{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// SyncMyFriends replaces the caller's friends list with the host
// payload. Rows absent from the payload are removed.
// POST /api/me/friends/sync
func (h *Handlers) SyncMyFriends(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Friends []auth.FriendPayload `json:"friends" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.SyncFriends(userID, req.Friends); err != nil {
		util.RespondInternalError(c, "Failed to sync friends")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "synced",
		"count":     len(req.Friends),
		"synced_at": time.Now().UTC(),
	})
}
