package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/telegram"
	"github.com/flotob/curia-sub002/internal/telemetry"
	"github.com/flotob/curia-sub002/internal/util"
	"github.com/flotob/curia-sub002/internal/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCommentLen = 10_000

// ListComments returns a post's comments as a flat list in thread
// order; clients rebuild the tree from parent_comment_id.
// GET /api/posts/:postId/comments
func (h *Handlers) ListComments(c *gin.Context) {
	postID, err := util.ParseID(c.Param("postId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid post id")
		return
	}

	post, _, ok := loadAccessiblePost(c, postID)
	if !ok {
		return
	}

	limit := util.ParseInt(c.Query("limit"), 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := util.ParseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	var total int64
	database.DB.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&total)

	var comments []models.Comment
	if err := database.DB.
		Preload("Author").
		Where("post_id = ?", post.ID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch comments")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comments": comments,
		"meta": gin.H{
			"post_id": post.ID,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		},
	})
}

// CreateComment creates a comment on a post. Requires board write
// access plus the post's own response gating when configured.
// POST /api/posts/:postId/comments
func (h *Handlers) CreateComment(c *gin.Context) {
	postID, err := util.ParseID(c.Param("postId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid post id")
		return
	}

	post, board, ok := loadAccessiblePost(c, postID)
	if !ok {
		return
	}
	if !h.checkBoardWriteAccess(c, board) {
		return
	}

	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	// Post-level response gating stacks on top of the board's locks.
	// The author always may reply in their own thread.
	if post.AuthorUserID != userID {
		if lockGating := commentLockGating(post); lockGating != nil {
			hasAccess, err := h.gating.HasAccess(userID, lockGating.LockIDs, lockGating.Fulfillment)
			if err != nil {
				util.RespondInternalError(c, "Failed to check comment access")
				return
			}
			if !hasAccess {
				util.RespondGatingRequired(c, "verification required to comment on this post")
				return
			}
		}
	}

	var req struct {
		Content         string `json:"content" binding:"required"`
		ParentCommentID *int64 `json:"parent_comment_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.App().ValidationFailures.WithLabelValues("comment", "binding").Inc()
		util.RespondBadRequest(c, err.Error())
		return
	}
	if len(req.Content) > maxCommentLen {
		metrics.App().ValidationFailures.WithLabelValues("content", "too_long").Inc()
		util.RespondValidationError(c, "content", "content must be at most 10000 characters")
		return
	}

	if req.ParentCommentID != nil {
		var parent models.Comment
		err := database.DB.
			Where("id = ? AND post_id = ?", *req.ParentCommentID, post.ID).
			First(&parent).Error
		if err != nil {
			util.RespondValidationError(c, "parent_comment_id", "parent comment not found on this post")
			return
		}
	}

	comment := models.Comment{
		PostID:          post.ID,
		AuthorUserID:    userID,
		Content:         req.Content,
		ParentCommentID: req.ParentCommentID,
	}

	_, span := telemetry.GetBusinessEvents().TraceCreateComment(c.Request.Context(), post.ID, req.ParentCommentID != nil)
	defer span.End()

	if err := database.DB.Create(&comment).Error; err != nil {
		telemetry.RecordServiceError(span, "comments", err)
		util.RespondInternalError(c, "Failed to create comment")
		return
	}

	if err := database.DB.Model(&models.Post{}).
		Where("id = ?", post.ID).
		UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error; err != nil {
		logger.Log.Warn("Failed to increment comment count",
			zap.Int64("post_id", post.ID),
			zap.Error(err))
	}

	h.pageCache.InvalidateBoardPosts(c.Request.Context(), board.ID)

	metrics.App().CommentsCreated.WithLabelValues().Inc()

	if err := database.DB.Preload("Author").First(&comment, "id = ?", comment.ID).Error; err != nil {
		logger.Log.Warn("Failed to reload comment with author",
			zap.Int64("comment_id", comment.ID),
			zap.Error(err))
	}

	h.announceComment(c.Request.Context(), &comment, post, board)
	telemetry.RecordServiceSuccess(span, nil)

	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

// announceComment fires the async side effects of a new comment:
// board-room WebSocket fan-out and Telegram notifications.
func (h *Handlers) announceComment(ctx context.Context, comment *models.Comment, post *models.Post, board *models.Board) {
	if h.wsHandler != nil {
		h.wsHandler.NotifyCommentCreated(board.ID, &websocket.CommentCreatedPayload{
			CommentID:       comment.ID,
			PostID:          post.ID,
			BoardID:         board.ID,
			ParentCommentID: comment.ParentCommentID,
			AuthorID:        comment.AuthorUserID,
			AuthorName:      comment.Author.Name,
		})
	}

	if h.notifier != nil {
		author := comment.Author
		note := telegram.NewCommentNotification(comment, post, board, &author)
		note.CorrelationID = middleware.GetCorrelationIDFromContext(ctx)
		if err := h.notifier.Submit(note); err != nil {
			logger.Log.Warn("Telegram comment notification dropped",
				zap.Int64("comment_id", comment.ID),
				zap.Error(err))
		}
	}
}

// UpdateComment applies an author-only edit
// PATCH /api/comments/:commentId
func (h *Handlers) UpdateComment(c *gin.Context) {
	commentID, err := util.ParseID(c.Param("commentId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid comment id")
		return
	}

	comment, _, ok := h.loadComment(c, commentID)
	if !ok {
		return
	}

	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if comment.AuthorUserID != userID {
		util.RespondForbidden(c, "only the author can edit this comment")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if len(req.Content) > maxCommentLen {
		util.RespondValidationError(c, "content", "content must be at most 10000 characters")
		return
	}

	now := time.Now()
	comment.Content = req.Content
	comment.IsEdited = true
	comment.EditedAt = &now
	if err := database.DB.Save(comment).Error; err != nil {
		util.RespondInternalError(c, "Failed to update comment")
		return
	}

	c.JSON(http.StatusOK, gin.H{"comment": comment})
}

// DeleteComment soft-deletes a comment by the author or an admin and
// releases its slot in the post's comment count
// DELETE /api/comments/:commentId
func (h *Handlers) DeleteComment(c *gin.Context) {
	commentID, err := util.ParseID(c.Param("commentId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid comment id")
		return
	}

	comment, post, ok := h.loadComment(c, commentID)
	if !ok {
		return
	}

	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if comment.AuthorUserID != userID && !util.IsAdminFromContext(c) {
		util.RespondForbidden(c, "only the author or an admin can delete this comment")
		return
	}

	if err := database.DB.Delete(comment).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete comment")
		return
	}

	if err := database.DB.Model(&models.Post{}).
		Where("id = ?", comment.PostID).
		UpdateColumn("comment_count", gorm.Expr("GREATEST(comment_count - 1, 0)")).Error; err != nil {
		logger.Log.Warn("Failed to decrement comment count",
			zap.Int64("post_id", comment.PostID),
			zap.Error(err))
	}

	h.pageCache.InvalidateBoardPosts(c.Request.Context(), post.BoardID)

	c.JSON(http.StatusOK, gin.H{
		"status":     "deleted",
		"comment_id": comment.ID,
	})
}

// loadComment fetches a comment and verifies the caller can access the
// post it belongs to.
func (h *Handlers) loadComment(c *gin.Context, commentID int64) (*models.Comment, *models.Post, bool) {
	var comment models.Comment
	err := database.DB.First(&comment, "id = ?", commentID).Error
	if util.HandleDBError(c, err, "comment") {
		return nil, nil, false
	}

	post, _, ok := loadAccessiblePost(c, comment.PostID)
	if !ok {
		return nil, nil, false
	}
	return &comment, post, true
}
