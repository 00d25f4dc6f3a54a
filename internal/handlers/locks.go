package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flotob/curia-sub002/internal/database"
	apperrors "github.com/flotob/curia-sub002/internal/errors"
	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/util"
)

const maxLockNameLen = 100

// ListLocks returns the community's lock library: public locks plus the
// caller's own private ones, most-used first.
// GET /api/locks
func (h *Handlers) ListLocks(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	communityID, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return
	}

	query := database.DB.Where("community_id = ?", communityID)
	if !util.IsAdminFromContext(c) {
		query = query.Where("is_public = ? OR creator_user_id = ?", true, userID)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("name ILIKE ?", "%"+search+"%")
	}
	if c.Query("templates") == "true" {
		query = query.Where("is_template = ?", true)
	}

	var locks []models.Lock
	if err := query.Preload("Creator").
		Order("usage_count DESC, created_at DESC").
		Find(&locks).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch locks")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"locks": locks,
		"total": len(locks),
	})
}

// CreateLock registers a reusable gating bundle. Any member may create
// locks; the config shape is validated up front so broken locks never
// reach the verifier.
// POST /api/locks
func (h *Handlers) CreateLock(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	communityID, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Name         string               `json:"name" binding:"required,min=1,max=100"`
		Description  string               `json:"description"`
		Icon         string               `json:"icon"`
		Color        string               `json:"color"`
		GatingConfig *models.GatingConfig `json:"gating_config" binding:"required"`
		IsTemplate   bool                 `json:"is_template"`
		IsPublic     *bool                `json:"is_public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := req.GatingConfig.Validate(); err != nil {
		metrics.App().ValidationFailures.WithLabelValues("gating_config", "invalid").Inc()
		util.RespondValidationError(c, "gating_config", err.Error())
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	lock := models.Lock{
		CommunityID:   communityID,
		CreatorUserID: userID,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Icon:          req.Icon,
		Color:         req.Color,
		GatingConfig:  req.GatingConfig,
		IsTemplate:    req.IsTemplate,
		IsPublic:      isPublic,
	}
	if err := database.DB.Create(&lock).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			util.RespondConflict(c, "lock name")
			return
		}
		util.RespondInternalError(c, "Failed to create lock")
		return
	}

	metrics.App().LocksCreated.WithLabelValues().Inc()

	c.JSON(http.StatusCreated, gin.H{"lock": lock})
}

// GetLock returns one lock with its usage stats.
// GET /api/locks/:lockId
func (h *Handlers) GetLock(c *gin.Context) {
	lock, ok := h.loadCommunityLock(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"lock": lock})
}

// UpdateLock applies a partial edit by the creator or an admin.
// PATCH /api/locks/:lockId
func (h *Handlers) UpdateLock(c *gin.Context) {
	lock, ok := h.loadCommunityLock(c)
	if !ok {
		return
	}
	if !h.canManageLock(c, lock) {
		return
	}

	var req struct {
		Name         *string              `json:"name"`
		Description  *string              `json:"description"`
		Icon         *string              `json:"icon"`
		Color        *string              `json:"color"`
		GatingConfig *models.GatingConfig `json:"gating_config"`
		IsTemplate   *bool                `json:"is_template"`
		IsPublic     *bool                `json:"is_public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > maxLockNameLen {
			util.RespondValidationError(c, "name", "name must be between 1 and 100 characters")
			return
		}
		lock.Name = name
	}
	if req.Description != nil {
		lock.Description = *req.Description
	}
	if req.Icon != nil {
		lock.Icon = *req.Icon
	}
	if req.Color != nil {
		lock.Color = *req.Color
	}
	if req.GatingConfig != nil {
		if err := req.GatingConfig.Validate(); err != nil {
			metrics.App().ValidationFailures.WithLabelValues("gating_config", "invalid").Inc()
			util.RespondValidationError(c, "gating_config", err.Error())
			return
		}
		lock.GatingConfig = req.GatingConfig
	}
	if req.IsTemplate != nil {
		lock.IsTemplate = *req.IsTemplate
	}
	if req.IsPublic != nil {
		lock.IsPublic = *req.IsPublic
	}

	if err := database.DB.Save(lock).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			util.RespondConflict(c, "lock name")
			return
		}
		util.RespondInternalError(c, "Failed to update lock")
		return
	}

	c.JSON(http.StatusOK, gin.H{"lock": lock})
}

// DeleteLock soft-deletes a lock once nothing references it. Gating
// would silently vanish from boards and posts otherwise, so a
// referenced lock is a 409 until the attachments are removed.
// DELETE /api/locks/:lockId
func (h *Handlers) DeleteLock(c *gin.Context) {
	lock, ok := h.loadCommunityLock(c)
	if !ok {
		return
	}
	if !h.canManageLock(c, lock) {
		return
	}

	refs, err := h.lockReferenceCount(lock)
	if err != nil {
		util.RespondInternalError(c, "Failed to check lock references")
		return
	}
	if refs > 0 {
		util.RespondWithAPIError(c, &apperrors.APIError{
			Code:    apperrors.ErrConflict,
			Message: "lock is still attached to boards or posts",
			Status:  http.StatusConflict,
		})
		return
	}

	if err := database.DB.Delete(lock).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete lock")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "deleted",
		"lock_id": lock.ID,
	})
}

// GetLockGatingRequirements returns the parsed requirement list with the
// caller's verification status folded in per category.
// GET /api/locks/:lockId/gating-requirements
func (h *Handlers) GetLockGatingRequirements(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	lock, ok := h.loadCommunityLock(c)
	if !ok {
		return
	}

	// Live pre-verifications by category, newest state per scope
	var records []models.PreVerification
	err := database.DB.
		Where("user_id = ? AND lock_id = ? AND status = ? AND expires_at > ?",
			userID, lock.ID, models.VerificationStatusVerified, time.Now()).
		Find(&records).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to load verification status")
		return
	}
	byCategory := make(map[string]*models.PreVerification, len(records))
	for i := range records {
		byCategory[records[i].CategoryType] = &records[i]
	}

	categories := make([]gin.H, 0, len(lock.GatingConfig.Categories))
	for _, category := range lock.GatingConfig.Categories {
		if !category.Enabled {
			continue
		}

		record := byCategory[category.Type]
		checks := storedChecks(record)

		requirements := make([]gin.H, 0, len(category.Requirements))
		for i, requirement := range category.Requirements {
			entry := gin.H{
				"type":             requirement.Type,
				"contract_address": requirement.ContractAddress,
				"min_amount":       requirement.MinAmount,
				"token_id":         requirement.TokenID,
				"name":             requirement.Name,
				"symbol":           requirement.Symbol,
				"satisfied":        false,
			}
			if i < len(checks) {
				entry["satisfied"] = checks[i].Satisfied
				entry["actual"] = checks[i].Actual
			}
			requirements = append(requirements, entry)
		}

		entry := gin.H{
			"type":         category.Type,
			"fulfillment":  category.Fulfillment,
			"verified":     record != nil,
			"requirements": requirements,
		}
		if record != nil {
			entry["expires_at"] = record.ExpiresAt
			entry["wallet_address"] = record.WalletAddress
		}
		categories = append(categories, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"lock_id":     lock.ID,
		"name":        lock.Name,
		"require_all": lock.GatingConfig.RequireAll,
		"categories":  categories,
	})
}

// loadCommunityLock fetches the :lockId lock in the session community.
// is_public only hides a lock from the library listing; anything a
// board or post references must stay resolvable by id, or members
// could not see what to verify.
func (h *Handlers) loadCommunityLock(c *gin.Context) (*models.Lock, bool) {
	lockID, err := util.ParseID(c.Param("lockId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid lock id")
		return nil, false
	}
	communityID, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return nil, false
	}

	var lock models.Lock
	err = database.DB.
		Where("id = ? AND community_id = ?", lockID, communityID).
		Preload("Creator").
		First(&lock).Error
	if util.HandleDBError(c, err, "lock") {
		return nil, false
	}
	return &lock, true
}

func (h *Handlers) canManageLock(c *gin.Context, lock *models.Lock) bool {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return false
	}
	if lock.CreatorUserID != userID && !util.IsAdminFromContext(c) {
		util.RespondForbidden(c, "only the creator or an admin can manage this lock")
		return false
	}
	return true
}

// lockReferenceCount counts live attachments: posts via lock_id or
// response permissions, boards via their lock gating settings.
func (h *Handlers) lockReferenceCount(lock *models.Lock) (int64, error) {
	var refs int64

	var directPosts int64
	err := database.DB.Model(&models.Post{}).
		Where("lock_id = ?", lock.ID).
		Count(&directPosts).Error
	if err != nil {
		return 0, err
	}
	refs += directPosts

	// Settings blobs are jsonb; the containment check is cheaper in Go
	// than chasing the nested structure in SQL.
	var boards []models.Board
	err = database.DB.
		Where("community_id = ? AND settings IS NOT NULL", lock.CommunityID).
		Find(&boards).Error
	if err != nil {
		return 0, err
	}
	for i := range boards {
		if gatingReferencesLock(boards[i].Settings.LockGating(), lock.ID) {
			refs++
		}
	}

	var posts []models.Post
	err = database.DB.
		Joins("JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL").
		Where("boards.community_id = ? AND posts.settings IS NOT NULL", lock.CommunityID).
		Find(&posts).Error
	if err != nil {
		return 0, err
	}
	for i := range posts {
		if gatingReferencesLock(posts[i].Settings.CommentGating(), lock.ID) {
			refs++
		}
	}

	return refs, nil
}

func gatingReferencesLock(gating *models.LockGating, lockID int64) bool {
	if gating == nil {
		return false
	}
	for _, id := range gating.LockIDs {
		if id == lockID {
			return true
		}
	}
	return false
}

// storedChecks unpacks the per-requirement results captured at
// verification time from the jsonb blob.
func storedChecks(record *models.PreVerification) []gating.RequirementResult {
	if record == nil || record.VerificationData == nil {
		return nil
	}
	raw, ok := record.VerificationData["checks"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var checks []gating.RequirementResult
	if err := json.Unmarshal(encoded, &checks); err != nil {
		return nil
	}
	return checks
}
