package handlers

import (
	"context"
	"net/http"
	"strconv"
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

const (
	defaultPageSize = 20
	maxPageSize     = 100

	maxPostTitleLen   = 255
	maxPostContentLen = 100_000
	maxPostTags       = 10
)

// ListBoardPosts returns a board's posts with cursor pagination,
// newest first. The cursor is opaque; clients echo next_cursor back.
// GET /api/communities/:communityId/boards/:boardId/posts
func (h *Handlers) ListBoardPosts(c *gin.Context) {
	if _, ok := communityFromPath(c); !ok {
		return
	}
	boardID, err := util.ParseID(c.Param("boardId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid board id")
		return
	}

	board, ok := loadVisibleBoard(c, boardID)
	if !ok {
		return
	}

	limit := util.ParseInt(c.Query("limit"), defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	cursor, err := util.DecodeCursor(c.Query("cursor"))
	if err != nil {
		util.RespondBadRequest(c, "malformed cursor")
		return
	}

	tags := util.ParseTagList(c.Query("tags"))

	_, span := telemetry.GetBusinessEvents().TraceListPosts(c.Request.Context(), board.ID, telemetry.ListEventAttrs{
		Limit:     int64(limit),
		HasCursor: cursor != nil,
		Filtered:  len(tags) > 0,
	})
	defer span.End()

	query := database.DB.
		Preload("Author").
		Where("board_id = ?", board.ID)

	if len(tags) > 0 {
		query = query.Where("tags @> ?::text[]", models.StringArray(tags))
	}

	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var posts []models.Post
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&posts).Error; err != nil {
		telemetry.RecordServiceError(span, "posts", err)
		util.RespondInternalError(c, "Failed to fetch posts")
		return
	}

	nextCursor := ""
	if len(posts) > limit {
		posts = posts[:limit]
		last := posts[len(posts)-1]
		nextCursor = util.EncodeCursor(last.CreatedAt, last.ID)
	}

	telemetry.RecordServiceSuccess(span, map[string]interface{}{"item_count": len(posts)})

	c.JSON(http.StatusOK, gin.H{
		"posts":       posts,
		"next_cursor": nextCursor,
		"meta": gin.H{
			"board_id": board.ID,
			"limit":    limit,
			"count":    len(posts),
		},
	})
}

// CreatePost creates a post in a board the caller can write to
// POST /api/communities/:communityId/boards/:boardId/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}
	boardID, err := util.ParseID(c.Param("boardId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid board id")
		return
	}

	board, ok := loadVisibleBoard(c, boardID)
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

	var req struct {
		Title    string               `json:"title" binding:"required"`
		Content  string               `json:"content" binding:"required"`
		Tags     []string             `json:"tags"`
		LockID   *int64               `json:"lock_id"`
		Settings *models.PostSettings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.App().ValidationFailures.WithLabelValues("post", "binding").Inc()
		util.RespondBadRequest(c, err.Error())
		return
	}

	if len(req.Title) > maxPostTitleLen {
		metrics.App().ValidationFailures.WithLabelValues("title", "too_long").Inc()
		util.RespondValidationError(c, "title", "title must be at most 255 characters")
		return
	}
	if len(req.Content) > maxPostContentLen {
		metrics.App().ValidationFailures.WithLabelValues("content", "too_long").Inc()
		util.RespondValidationError(c, "content", "content must be at most 100000 characters")
		return
	}
	if len(req.Tags) > maxPostTags {
		metrics.App().ValidationFailures.WithLabelValues("tags", "too_many").Inc()
		util.RespondValidationError(c, "tags", "at most 10 tags per post")
		return
	}

	if req.LockID != nil {
		var count int64
		database.DB.Model(&models.Lock{}).
			Where("id = ? AND community_id = ?", *req.LockID, communityID).
			Count(&count)
		if count == 0 {
			util.RespondValidationError(c, "lock_id", "lock not found in this community")
			return
		}
	}

	post := models.Post{
		AuthorUserID: userID,
		BoardID:      board.ID,
		Title:        req.Title,
		Content:      req.Content,
		Tags:         req.Tags,
		LockID:       req.LockID,
		Settings:     req.Settings,
	}
	gated := board.Settings.LockGating() != nil || len(postLockIDs(&post)) > 0

	_, span := telemetry.GetBusinessEvents().TraceCreatePost(c.Request.Context(), board.ID, gated)
	defer span.End()

	if err := database.DB.Create(&post).Error; err != nil {
		telemetry.RecordServiceError(span, "posts", err)
		util.RespondInternalError(c, "Failed to create post")
		return
	}

	database.DB.Model(&models.Board{}).
		Where("id = ?", board.ID).
		UpdateColumn("post_count", gorm.Expr("post_count + 1"))

	h.pageCache.InvalidateBoardPosts(c.Request.Context(), board.ID)

	syncLockUsage(nil, postLockIDs(&post))

	metrics.App().PostsCreated.WithLabelValues(strconv.FormatBool(gated)).Inc()

	if err := database.DB.Preload("Author").First(&post, "id = ?", post.ID).Error; err != nil {
		logger.Log.Warn("Failed to reload post with author", zap.Int64("post_id", post.ID), zap.Error(err))
	}

	h.announcePost(c.Request.Context(), communityID, &post, board)
	telemetry.RecordServiceSuccess(span, nil)

	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// announcePost fires the async side effects of a new post: WebSocket
// fan-out to the community room and Telegram notifications.
func (h *Handlers) announcePost(ctx context.Context, communityID string, post *models.Post, board *models.Board) {
	if h.wsHandler != nil {
		h.wsHandler.NotifyPostCreated(communityID, &websocket.PostCreatedPayload{
			PostID:     post.ID,
			BoardID:    board.ID,
			Title:      post.Title,
			AuthorID:   post.AuthorUserID,
			AuthorName: post.Author.Name,
		})
	}

	if h.notifier != nil {
		author := post.Author
		note := telegram.NewPostNotification(post, board, &author)
		note.CorrelationID = middleware.GetCorrelationIDFromContext(ctx)
		if err := h.notifier.Submit(note); err != nil {
			logger.Log.Warn("Telegram post notification dropped",
				zap.Int64("post_id", post.ID),
				zap.Error(err))
		}
	}
}

// GetPost returns a post with its board context and the caller's
// reaction summary
// GET /api/posts/:postId
func (h *Handlers) GetPost(c *gin.Context) {
	postID, err := util.ParseID(c.Param("postId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid post id")
		return
	}

	post, board, ok := loadAccessiblePost(c, postID)
	if !ok {
		return
	}

	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var myReactions []string
	database.DB.Model(&models.Reaction{}).
		Where("post_id = ? AND user_id = ?", post.ID, userID).
		Pluck("emoji", &myReactions)

	c.JSON(http.StatusOK, gin.H{
		"post": post,
		"board": gin.H{
			"id":           board.ID,
			"name":         board.Name,
			"slug":         board.Slug,
			"community_id": board.CommunityID,
		},
		"my_reactions": myReactions,
	})
}

// UpdatePost applies a partial edit by the author or an admin
// PATCH /api/posts/:postId
func (h *Handlers) UpdatePost(c *gin.Context) {
	postID, err := util.ParseID(c.Param("postId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid post id")
		return
	}

	post, _, ok := loadAccessiblePost(c, postID)
	if !ok {
		return
	}

	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if post.AuthorUserID != userID && !util.IsAdminFromContext(c) {
		util.RespondForbidden(c, "only the author or an admin can edit this post")
		return
	}

	var req struct {
		Title    *string              `json:"title"`
		Content  *string              `json:"content"`
		Tags     *[]string            `json:"tags"`
		Settings *models.PostSettings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	oldLockIDs := postLockIDs(post)

	if req.Title != nil {
		if *req.Title == "" || len(*req.Title) > maxPostTitleLen {
			util.RespondValidationError(c, "title", "title must be 1-255 characters")
			return
		}
		post.Title = *req.Title
	}
	if req.Content != nil {
		if *req.Content == "" || len(*req.Content) > maxPostContentLen {
			util.RespondValidationError(c, "content", "content must be 1-100000 characters")
			return
		}
		post.Content = *req.Content
	}
	if req.Tags != nil {
		if len(*req.Tags) > maxPostTags {
			util.RespondValidationError(c, "tags", "at most 10 tags per post")
			return
		}
		post.Tags = *req.Tags
	}
	if req.Settings != nil {
		post.Settings = req.Settings
	}

	now := time.Now()
	post.IsEdited = true
	post.EditedAt = &now

	if err := database.DB.Save(post).Error; err != nil {
		util.RespondInternalError(c, "Failed to update post")
		return
	}

	if req.Settings != nil {
		syncLockUsage(oldLockIDs, postLockIDs(post))
	}

	h.pageCache.InvalidateBoardPosts(c.Request.Context(), post.BoardID)

	c.JSON(http.StatusOK, gin.H{"post": post})
}

// DeletePost soft-deletes a post by the author or an admin
// DELETE /api/posts/:postId
func (h *Handlers) DeletePost(c *gin.Context) {
	postID, err := util.ParseID(c.Param("postId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid post id")
		return
	}

	post, board, ok := loadAccessiblePost(c, postID)
	if !ok {
		return
	}

	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if post.AuthorUserID != userID && !util.IsAdminFromContext(c) {
		util.RespondForbidden(c, "only the author or an admin can delete this post")
		return
	}

	if err := database.DB.Delete(post).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete post")
		return
	}

	database.DB.Model(&models.Board{}).
		Where("id = ?", board.ID).
		UpdateColumn("post_count", gorm.Expr("GREATEST(post_count - 1, 0)"))

	h.pageCache.InvalidateBoardPosts(c.Request.Context(), board.ID)

	syncLockUsage(postLockIDs(post), nil)

	c.JSON(http.StatusOK, gin.H{
		"status":  "deleted",
		"post_id": strconv.FormatInt(post.ID, 10),
	})
}
