package handlers

import (
	"net/http"
	"time"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/util"
	"github.com/flotob/curia-sub002/internal/websocket"
	"github.com/gin-gonic/gin"
)

// ListBoards returns the community's boards visible to the caller
// GET /api/communities/:communityId/boards
func (h *Handlers) ListBoards(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}

	var boards []models.Board
	if err := database.DB.
		Where("community_id = ?", communityID).
		Order("name ASC").
		Find(&boards).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch boards")
		return
	}

	isAdmin := util.IsAdminFromContext(c)
	roles := util.GetRolesFromContext(c)

	visible := make([]gin.H, 0, len(boards))
	for i := range boards {
		board := &boards[i]
		if !isAdmin && !board.Settings.RoleAllowed(roles) {
			continue
		}
		visible = append(visible, gin.H{
			"id":          board.ID,
			"name":        board.Name,
			"slug":        board.Slug,
			"description": board.Description,
			"settings":    board.Settings,
			"post_count":  board.PostCount,
			"is_gated":    board.Settings.LockGating() != nil,
			"created_at":  board.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"boards": visible})
}

// CreateBoard creates a board in the community
// POST /api/communities/:communityId/boards
func (h *Handlers) CreateBoard(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}

	var req struct {
		Name        string                `json:"name" binding:"required,min=1,max=100"`
		Description string                `json:"description" binding:"max=2000"`
		Settings    *models.BoardSettings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.App().ValidationFailures.WithLabelValues("board", "binding").Inc()
		util.RespondBadRequest(c, err.Error())
		return
	}

	slug := util.Slugify(req.Name)
	var existing int64
	database.DB.Model(&models.Board{}).
		Where("community_id = ? AND slug = ?", communityID, slug).
		Count(&existing)
	if existing > 0 {
		util.RespondConflict(c, "board slug")
		return
	}

	board := models.Board{
		CommunityID: communityID,
		Name:        req.Name,
		Slug:        slug,
		Description: req.Description,
		Settings:    req.Settings,
	}
	if err := database.DB.Create(&board).Error; err != nil {
		util.RespondInternalError(c, "Failed to create board")
		return
	}

	if gating := board.Settings.LockGating(); gating != nil {
		syncLockUsage(nil, gating.LockIDs)
	}

	metrics.App().BoardsCreated.WithLabelValues().Inc()

	if h.wsHandler != nil {
		h.wsHandler.NotifyBoardCreated(communityID, &websocket.BoardCreatedPayload{
			BoardID: board.ID,
			Name:    board.Name,
			Slug:    board.Slug,
		})
	}

	c.JSON(http.StatusCreated, gin.H{"board": board})
}

// GetBoard returns a board with the caller's access summary
// GET /api/communities/:communityId/boards/:boardId
func (h *Handlers) GetBoard(c *gin.Context) {
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

	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	canWrite := true
	var lockSummary []gin.H
	if lockGating := board.Settings.LockGating(); lockGating != nil {
		canWrite, lockSummary = h.lockGatingSummary(c, userID, lockGating)
		if lockSummary == nil {
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"board": board,
		"access": gin.H{
			"can_read":  true,
			"can_write": canWrite,
			"locks":     lockSummary,
		},
	})
}

// UpdateBoard applies an admin's partial update. The slug stays stable
// across renames so existing links keep working.
// PATCH /api/communities/:communityId/boards/:boardId
func (h *Handlers) UpdateBoard(c *gin.Context) {
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

	var req struct {
		Name        *string               `json:"name"`
		Description *string               `json:"description"`
		Settings    *models.BoardSettings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	oldLockIDs := []int64{}
	if gating := board.Settings.LockGating(); gating != nil {
		oldLockIDs = gating.LockIDs
	}

	if req.Name != nil {
		if *req.Name == "" || len(*req.Name) > 100 {
			util.RespondValidationError(c, "name", "name must be 1-100 characters")
			return
		}
		board.Name = *req.Name
	}
	if req.Description != nil {
		board.Description = *req.Description
	}
	if req.Settings != nil {
		board.Settings = req.Settings
	}

	if err := database.DB.Save(board).Error; err != nil {
		util.RespondInternalError(c, "Failed to update board")
		return
	}

	if req.Settings != nil {
		newLockIDs := []int64{}
		if gating := board.Settings.LockGating(); gating != nil {
			newLockIDs = gating.LockIDs
		}
		syncLockUsage(oldLockIDs, newLockIDs)
	}

	c.JSON(http.StatusOK, gin.H{"board": board})
}

// DeleteBoard soft-deletes a board; its posts become unreachable
// DELETE /api/communities/:communityId/boards/:boardId
func (h *Handlers) DeleteBoard(c *gin.Context) {
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

	if err := database.DB.Delete(board).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete board")
		return
	}

	if gating := board.Settings.LockGating(); gating != nil {
		syncLockUsage(gating.LockIDs, nil)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "deleted",
		"board_id":   board.ID,
		"deleted_at": time.Now().UTC(),
	})
}

// GetBoardVerificationStatus reports per-lock verification state for
// posting in this board
// GET /api/communities/:communityId/boards/:boardId/verification-status
func (h *Handlers) GetBoardVerificationStatus(c *gin.Context) {
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

	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	lockGating := board.Settings.LockGating()
	if lockGating == nil {
		c.JSON(http.StatusOK, gin.H{
			"board_id":  board.ID,
			"gated":     false,
			"can_write": true,
			"locks":     []gin.H{},
		})
		return
	}

	satisfied, summary := h.lockGatingSummary(c, userID, lockGating)
	if summary == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"board_id":              board.ID,
		"gated":                 true,
		"can_write":             satisfied,
		"fulfillment":           lockGating.Fulfillment,
		"verification_duration": lockGating.VerificationDuration,
		"locks":                 summary,
	})
}

// lockGatingSummary builds the per-lock status rows for a gating
// config. Returns (satisfied, rows); rows is nil after an error
// response has been written.
func (h *Handlers) lockGatingSummary(c *gin.Context, userID string, lockGating *models.LockGating) (bool, []gin.H) {
	statuses, err := h.gating.Status(userID, lockGating.LockIDs)
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch verification status")
		return false, nil
	}

	var locks []models.Lock
	if err := database.DB.Where("id IN ?", lockGating.LockIDs).Find(&locks).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch locks")
		return false, nil
	}
	lockByID := make(map[int64]*models.Lock, len(locks))
	for i := range locks {
		lockByID[locks[i].ID] = &locks[i]
	}

	verified := 0
	rows := make([]gin.H, 0, len(statuses))
	for _, status := range statuses {
		row := gin.H{
			"lock_id":    status.LockID,
			"verified":   status.Verified,
			"expires_at": status.ExpiresAt,
		}
		if lock := lockByID[status.LockID]; lock != nil {
			row["name"] = lock.Name
			row["icon"] = lock.Icon
			row["color"] = lock.Color
		}
		rows = append(rows, row)
		if status.Verified {
			verified++
		}
	}

	satisfied := verified > 0
	if lockGating.FulfillsAll() {
		satisfied = verified == len(lockGating.LockIDs)
	}
	return satisfied, rows
}
