package handlers

import (
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// communityFromPath resolves the :communityId path param against the
// session's community. Sessions are scoped to one community, so a
// mismatch is a 403 rather than a lookup.
func communityFromPath(c *gin.Context) (string, bool) {
	sessionCommunity, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return "", false
	}

	pathCommunity := c.Param("communityId")
	if pathCommunity != "" && pathCommunity != sessionCommunity {
		util.RespondForbidden(c, "session is scoped to a different community")
		return "", false
	}
	return sessionCommunity, true
}

// loadVisibleBoard fetches a board in the session community and applies
// role gating. Boards the caller cannot see respond 404, the same as
// boards that don't exist.
func loadVisibleBoard(c *gin.Context, boardID int64) (*models.Board, bool) {
	communityID, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return nil, false
	}

	var board models.Board
	err := database.DB.
		Where("id = ? AND community_id = ?", boardID, communityID).
		First(&board).Error
	if util.HandleDBError(c, err, "board") {
		return nil, false
	}

	if !util.IsAdminFromContext(c) && !board.Settings.RoleAllowed(util.GetRolesFromContext(c)) {
		util.RespondNotFound(c, "board")
		return nil, false
	}
	return &board, true
}

// loadAccessiblePost fetches a post together with its board, applying
// the board's role gating.
func loadAccessiblePost(c *gin.Context, postID int64) (*models.Post, *models.Board, bool) {
	var post models.Post
	err := database.DB.Preload("Author").First(&post, "id = ?", postID).Error
	if util.HandleDBError(c, err, "post") {
		return nil, nil, false
	}

	board, ok := loadVisibleBoard(c, post.BoardID)
	if !ok {
		return nil, nil, false
	}
	return &post, board, true
}

// checkBoardWriteAccess enforces the board's lock gating for the
// caller. Role gating is already part of visibility; locks apply to
// everyone, admins included, because they attest wallet state rather
// than standing.
func (h *Handlers) checkBoardWriteAccess(c *gin.Context, board *models.Board) bool {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return false
	}

	lockGating := board.Settings.LockGating()
	if lockGating == nil {
		return true
	}

	hasAccess, err := h.gating.HasAccess(userID, lockGating.LockIDs, lockGating.Fulfillment)
	if err != nil {
		util.RespondInternalError(c, "Failed to check board access")
		return false
	}
	if !hasAccess {
		util.RespondGatingRequired(c, "verification required to post in this board")
		return false
	}
	return true
}

// commentLockGating collects the lock set gating replies to a post:
// the explicit response permissions plus the post's attached lock.
func commentLockGating(post *models.Post) *models.LockGating {
	gating := post.Settings.CommentGating()
	if post.LockID == nil {
		return gating
	}

	if gating == nil {
		return &models.LockGating{LockIDs: []int64{*post.LockID}, Fulfillment: models.FulfillmentAny}
	}

	for _, id := range gating.LockIDs {
		if id == *post.LockID {
			return gating
		}
	}
	merged := *gating
	merged.LockIDs = append(append([]int64{}, gating.LockIDs...), *post.LockID)
	return &merged
}

// syncLockUsage moves lock usage counters when attachments change.
// Decrements floor at zero.
func syncLockUsage(oldIDs, newIDs []int64) {
	oldSet := make(map[int64]bool, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = true
	}
	newSet := make(map[int64]bool, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = true
	}

	var attached, detached []int64
	for id := range newSet {
		if !oldSet[id] {
			attached = append(attached, id)
		}
	}
	for id := range oldSet {
		if !newSet[id] {
			detached = append(detached, id)
		}
	}

	if len(attached) > 0 {
		database.DB.Model(&models.Lock{}).
			Where("id IN ?", attached).
			UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	}
	if len(detached) > 0 {
		database.DB.Model(&models.Lock{}).
			Where("id IN ?", detached).
			UpdateColumn("usage_count", gorm.Expr("GREATEST(usage_count - 1, 0)"))
	}
}

// postLockIDs lists every lock attached to a post, for usage counting.
func postLockIDs(post *models.Post) []int64 {
	var ids []int64
	if gating := post.Settings.CommentGating(); gating != nil {
		ids = append(ids, gating.LockIDs...)
	}
	if post.LockID != nil {
		found := false
		for _, id := range ids {
			if id == *post.LockID {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, *post.LockID)
		}
	}
	return ids
}
