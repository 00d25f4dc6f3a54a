package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/telegram"
	"github.com/flotob/curia-sub002/internal/telemetry"
	"github.com/flotob/curia-sub002/internal/util"
	"github.com/flotob/curia-sub002/internal/websocket"
)

const maxEmojiLen = 16

// reactionTarget identifies what a reaction attaches to. boardID is zero for
// lock targets, which live outside any board.
type reactionTarget struct {
	kind    string
	id      int64
	boardID int64
	postID  int64
}

func (h *Handlers) resolvePostTarget(c *gin.Context) (*reactionTarget, bool) {
	postID, err := util.ParseID(c.Param("postId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid post id")
		return nil, false
	}
	post, _, ok := loadAccessiblePost(c, postID)
	if !ok {
		return nil, false
	}
	return &reactionTarget{kind: "post", id: post.ID, boardID: post.BoardID, postID: post.ID}, true
}

func (h *Handlers) resolveCommentTarget(c *gin.Context) (*reactionTarget, bool) {
	commentID, err := util.ParseID(c.Param("commentId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid comment id")
		return nil, false
	}
	comment, post, ok := h.loadComment(c, commentID)
	if !ok {
		return nil, false
	}
	return &reactionTarget{kind: "comment", id: comment.ID, boardID: post.BoardID, postID: post.ID}, true
}

func (h *Handlers) resolveLockTarget(c *gin.Context) (*reactionTarget, bool) {
	lock, ok := h.loadCommunityLock(c)
	if !ok {
		return nil, false
	}
	return &reactionTarget{kind: "lock", id: lock.ID}, true
}

// targetScope narrows a reaction query to one target row.
func targetScope(db *gorm.DB, target *reactionTarget) *gorm.DB {
	switch target.kind {
	case "post":
		return db.Where("post_id = ?", target.id)
	case "comment":
		return db.Where("comment_id = ?", target.id)
	default:
		return db.Where("lock_id = ?", target.id)
	}
}

// assign points a fresh reaction row at the target.
func (t *reactionTarget) assign(reaction *models.Reaction) {
	switch t.kind {
	case "post":
		reaction.PostID = &t.id
	case "comment":
		reaction.CommentID = &t.id
	default:
		reaction.LockID = &t.id
	}
}

// GetPostReactions returns the emoji aggregate for a post.
// GET /api/posts/:postId/reactions
func (h *Handlers) GetPostReactions(c *gin.Context) {
	target, ok := h.resolvePostTarget(c)
	if !ok {
		return
	}
	h.respondReactionAggregate(c, target)
}

// GetCommentReactions returns the emoji aggregate for a comment.
// GET /api/comments/:commentId/reactions
func (h *Handlers) GetCommentReactions(c *gin.Context) {
	target, ok := h.resolveCommentTarget(c)
	if !ok {
		return
	}
	h.respondReactionAggregate(c, target)
}

// GetLockReactions returns the emoji aggregate for a lock.
// GET /api/locks/:lockId/reactions
func (h *Handlers) GetLockReactions(c *gin.Context) {
	target, ok := h.resolveLockTarget(c)
	if !ok {
		return
	}
	h.respondReactionAggregate(c, target)
}

// AddPostReaction toggles an emoji onto a post. Reacting with the upvote
// emoji also bumps the post's upvote count.
// POST /api/posts/:postId/reactions
func (h *Handlers) AddPostReaction(c *gin.Context) {
	target, ok := h.resolvePostTarget(c)
	if !ok {
		return
	}
	h.addReaction(c, target)
}

// AddCommentReaction toggles an emoji onto a comment.
// POST /api/comments/:commentId/reactions
func (h *Handlers) AddCommentReaction(c *gin.Context) {
	target, ok := h.resolveCommentTarget(c)
	if !ok {
		return
	}
	h.addReaction(c, target)
}

// AddLockReaction toggles an emoji onto a lock.
// POST /api/locks/:lockId/reactions
func (h *Handlers) AddLockReaction(c *gin.Context) {
	target, ok := h.resolveLockTarget(c)
	if !ok {
		return
	}
	h.addReaction(c, target)
}

// RemovePostReaction removes the caller's emoji from a post.
// DELETE /api/posts/:postId/reactions
func (h *Handlers) RemovePostReaction(c *gin.Context) {
	target, ok := h.resolvePostTarget(c)
	if !ok {
		return
	}
	h.removeReaction(c, target)
}

// RemoveCommentReaction removes the caller's emoji from a comment.
// DELETE /api/comments/:commentId/reactions
func (h *Handlers) RemoveCommentReaction(c *gin.Context) {
	target, ok := h.resolveCommentTarget(c)
	if !ok {
		return
	}
	h.removeReaction(c, target)
}

// RemoveLockReaction removes the caller's emoji from a lock.
// DELETE /api/locks/:lockId/reactions
func (h *Handlers) RemoveLockReaction(c *gin.Context) {
	target, ok := h.resolveLockTarget(c)
	if !ok {
		return
	}
	h.removeReaction(c, target)
}

func (h *Handlers) addReaction(c *gin.Context, target *reactionTarget) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondValidationError(c, "emoji", "emoji is required")
		return
	}
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" || len([]rune(emoji)) > maxEmojiLen {
		metrics.App().ValidationFailures.WithLabelValues("emoji", "invalid").Inc()
		util.RespondValidationError(c, "emoji", "emoji must be between 1 and 16 characters")
		return
	}

	_, span := telemetry.GetBusinessEvents().TraceReaction(c.Request.Context(), emoji, target.kind, target.id)
	defer span.End()

	// Reacting twice with the same emoji is a no-op, not an error.
	var existing models.Reaction
	err := targetScope(database.DB.Where("user_id = ? AND emoji = ?", userID, emoji), target).
		First(&existing).Error
	if err == nil {
		h.respondReactionAggregate(c, target)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondInternalError(c, "failed to check reaction")
		return
	}

	reaction := models.Reaction{UserID: userID, Emoji: emoji}
	target.assign(&reaction)
	if err := database.DB.Create(&reaction).Error; err != nil {
		if errors.Is(err, models.ErrReactionTarget) {
			util.RespondBadRequest(c, "reaction must target exactly one of post, comment, or lock")
			return
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			// Lost a race against the same user double-tapping. The row
			// exists, which is all the toggle promises.
			h.respondReactionAggregate(c, target)
			return
		}
		telemetry.RecordServiceError(span, "reactions", err)
		util.RespondInternalError(c, "failed to add reaction")
		return
	}

	metrics.App().ReactionsTotal.WithLabelValues("add").Inc()

	if target.kind == "post" && emoji == models.UpvoteEmoji {
		if err := database.DB.Model(&models.Post{}).Where("id = ?", target.id).
			UpdateColumn("upvote_count", gorm.Expr("upvote_count + 1")).Error; err != nil {
			logger.Log.Warn("failed to bump upvote count",
				zap.Int64("post_id", target.id),
				zap.Error(err))
		} else {
			h.maybeNotifyUpvoteMilestone(c.Request.Context(), target.id)
		}
	}

	telemetry.RecordServiceSuccess(span, nil)
	h.broadcastReaction(target, emoji)
	h.respondReactionAggregate(c, target)
}

func (h *Handlers) removeReaction(c *gin.Context, target *reactionTarget) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	emoji := strings.TrimSpace(c.Query("emoji"))
	if emoji == "" {
		util.RespondValidationError(c, "emoji", "emoji query parameter is required")
		return
	}

	_, span := telemetry.GetBusinessEvents().TraceReaction(c.Request.Context(), emoji, target.kind, target.id)
	defer span.End()

	result := targetScope(database.DB.Where("user_id = ? AND emoji = ?", userID, emoji), target).
		Delete(&models.Reaction{})
	if result.Error != nil {
		telemetry.RecordServiceError(span, "reactions", result.Error)
		util.RespondInternalError(c, "failed to remove reaction")
		return
	}

	if result.RowsAffected > 0 {
		metrics.App().ReactionsTotal.WithLabelValues("remove").Inc()

		if target.kind == "post" && emoji == models.UpvoteEmoji {
			if err := database.DB.Model(&models.Post{}).Where("id = ?", target.id).
				UpdateColumn("upvote_count", gorm.Expr("GREATEST(upvote_count - 1, 0)")).Error; err != nil {
				logger.Log.Warn("failed to drop upvote count",
					zap.Int64("post_id", target.id),
					zap.Error(err))
			}
		}

		h.broadcastReaction(target, emoji)
	}

	telemetry.RecordServiceSuccess(span, nil)
	h.respondReactionAggregate(c, target)
}

// respondReactionAggregate returns every emoji on the target with counts,
// reactor names, and whether the caller is among them.
func (h *Handlers) respondReactionAggregate(c *gin.Context, target *reactionTarget) {
	userID := c.GetString("user_id")

	var reactions []models.Reaction
	if err := targetScope(database.DB.Preload("User"), target).
		Order("created_at ASC").Find(&reactions).Error; err != nil {
		util.RespondInternalError(c, "failed to load reactions")
		return
	}

	type emojiGroup struct {
		Emoji       string   `json:"emoji"`
		Count       int      `json:"count"`
		UserReacted bool     `json:"user_reacted"`
		Users       []string `json:"users"`
	}

	groups := make(map[string]*emojiGroup)
	order := make([]string, 0)
	for _, r := range reactions {
		g, seen := groups[r.Emoji]
		if !seen {
			g = &emojiGroup{Emoji: r.Emoji}
			groups[r.Emoji] = g
			order = append(order, r.Emoji)
		}
		g.Count++
		if r.UserID == userID {
			g.UserReacted = true
		}
		if r.User.Name != "" {
			g.Users = append(g.Users, r.User.Name)
		}
	}

	out := make([]emojiGroup, 0, len(order))
	for _, emoji := range order {
		out = append(out, *groups[emoji])
	}

	c.JSON(http.StatusOK, gin.H{
		"reactions": out,
		"total":     len(reactions),
	})
}

// broadcastReaction pushes the fresh per-emoji count to the target's board
// room. Lock reactions have no board, so nothing listens for them.
func (h *Handlers) broadcastReaction(target *reactionTarget, emoji string) {
	if h.wsHandler == nil || target.boardID == 0 {
		return
	}

	var count int64
	if err := targetScope(database.DB.Model(&models.Reaction{}), target).
		Where("emoji = ?", emoji).Count(&count).Error; err != nil {
		logger.Log.Warn("failed to count reactions for broadcast",
			zap.String("target", target.kind),
			zap.Int64("target_id", target.id),
			zap.Error(err))
		return
	}

	payload := &websocket.ReactionUpdatePayload{
		TargetType: target.kind,
		TargetID:   target.id,
		BoardID:    target.boardID,
		Emoji:      emoji,
		Count:      count,
	}
	if target.kind == "post" && emoji == models.UpvoteEmoji {
		var post models.Post
		if err := database.DB.Select("upvote_count").First(&post, target.id).Error; err == nil {
			upvotes := post.UpvoteCount
			payload.UpvoteCount = &upvotes
		}
	}
	h.wsHandler.NotifyReactionUpdate(target.boardID, payload)
}

// maybeNotifyUpvoteMilestone sends a Telegram notification when a post's
// upvote count lands exactly on a milestone.
func (h *Handlers) maybeNotifyUpvoteMilestone(ctx context.Context, postID int64) {
	if h.notifier == nil {
		return
	}

	var post models.Post
	if err := database.DB.Preload("Author").Preload("Board").First(&post, postID).Error; err != nil {
		logger.Log.Warn("failed to load post for milestone check",
			zap.Int64("post_id", postID),
			zap.Error(err))
		return
	}

	milestone := telegram.UpvoteMilestone(post.UpvoteCount)
	if milestone == 0 {
		return
	}

	correlationID := middleware.GetCorrelationIDFromContext(ctx)
	go func() {
		notification := telegram.NewMilestoneNotification(&post, &post.Board, milestone)
		notification.CorrelationID = correlationID
		if err := h.notifier.Submit(notification); err != nil {
			logger.Log.Warn("milestone notification dropped",
				zap.Int64("post_id", postID),
				zap.Int("milestone", milestone),
				zap.Error(err))
		}
	}()
}
