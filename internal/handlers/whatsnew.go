package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flotob/curia-sub002/internal/activity"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/util"
)

// GetWhatsNew returns the caller's activity digest since their last
// visit, or since an explicit ?since= timestamp.
// GET /api/me/whats-new
func (h *Handlers) GetWhatsNew(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	communityID, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return
	}

	since, ok := h.resolveSince(c, userID, communityID)
	if !ok {
		return
	}

	category := c.Query("category")
	switch category {
	case "",
		activity.CategoryCommentsOnMyPosts,
		activity.CategoryReactionsOnMyContent,
		activity.CategoryNewPostsInBoards,
		activity.CategoryCommentsOnPostsICommented:
	default:
		util.RespondValidationError(c, "category", "unknown category")
		return
	}

	resp, err := h.activity.GetWhatsNew(c.Request.Context(), activity.Params{
		UserID:      userID,
		CommunityID: communityID,
		Roles:       util.GetRolesFromContext(c),
		IsAdmin:     util.IsAdminFromContext(c),
		Since:       since,
		Category:    category,
		Limit:       util.ParseInt(c.Query("limit"), 0),
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to build digest")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// resolveSince picks the digest window start: an explicit RFC 3339
// ?since= wins, otherwise the membership's last visit, otherwise one
// day.
func (h *Handlers) resolveSince(c *gin.Context, userID, communityID string) (time.Time, bool) {
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			util.RespondValidationError(c, "since", "since must be an RFC 3339 timestamp")
			return time.Time{}, false
		}
		return since, true
	}

	var membership models.UserCommunity
	err := database.DB.
		Where("user_id = ? AND community_id = ?", userID, communityID).
		First(&membership).Error
	if err == nil {
		return membership.LastVisitedAt, true
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondInternalError(c, "Failed to resolve digest window")
		return time.Time{}, false
	}
	return time.Now().Add(-24 * time.Hour), true
}
