package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/flotob/curia-sub002/internal/database"
	apperrors "github.com/flotob/curia-sub002/internal/errors"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/storage"
	"github.com/flotob/curia-sub002/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListMyCommunities returns the communities the caller belongs to
// GET /api/communities
func (h *Handlers) ListMyCommunities(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var memberships []models.UserCommunity
	if err := database.DB.
		Preload("Community").
		Where("user_id = ?", userID).
		Order("last_visited_at DESC").
		Find(&memberships).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch communities")
		return
	}

	items := make([]gin.H, 0, len(memberships))
	for _, m := range memberships {
		if m.Community.ID == "" {
			continue
		}
		items = append(items, gin.H{
			"id":                 m.Community.ID,
			"name":               m.Community.Name,
			"community_short_id": m.Community.CommunityShortID,
			"plugin_id":          m.Community.PluginID,
			"logo_url":           m.Community.LogoURL,
			"role":               m.Role,
			"last_visited_at":    m.LastVisitedAt,
			"visit_count":        m.VisitCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{"communities": items})
}

// GetCommunity returns one community's detail for a member
// GET /api/communities/:communityId
func (h *Handlers) GetCommunity(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}

	var community models.Community
	if err := database.DB.First(&community, "id = ?", communityID).Error; util.HandleDBError(c, err, "community") {
		return
	}

	var memberCount int64
	database.DB.Model(&models.UserCommunity{}).
		Where("community_id = ?", communityID).
		Count(&memberCount)

	var boardCount int64
	database.DB.Model(&models.Board{}).
		Where("community_id = ?", communityID).
		Count(&boardCount)

	c.JSON(http.StatusOK, gin.H{
		"community":    community,
		"member_count": memberCount,
		"board_count":  boardCount,
	})
}

// UpdateCommunity applies an admin's settings change
// PATCH /api/communities/:communityId
func (h *Handlers) UpdateCommunity(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}

	var req struct {
		Settings *models.CommunitySettings `json:"settings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var community models.Community
	if err := database.DB.First(&community, "id = ?", communityID).Error; err != nil {
		util.RespondNotFound(c, "community")
		return
	}

	// Background image URLs come from the upload endpoint, not the
	// client. Carry the stored URL across settings writes.
	if community.Settings != nil && community.Settings.Background != nil {
		if req.Settings.Background == nil {
			req.Settings.Background = &models.BackgroundSettings{}
		}
		if req.Settings.Background.ImageURL == "" {
			req.Settings.Background.ImageURL = community.Settings.Background.ImageURL
		}
	}

	community.Settings = req.Settings
	if err := database.DB.Save(&community).Error; err != nil {
		util.RespondInternalError(c, "Failed to update community")
		return
	}

	c.JSON(http.StatusOK, gin.H{"community": community})
}

// UploadCommunityBackground stores a new background image in S3 and
// points the community settings at it
// POST /api/communities/:communityId/background
func (h *Handlers) UploadCommunityBackground(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}

	if h.uploader == nil {
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("image uploads"))
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		util.RespondBadRequest(c, "image file is required")
		return
	}
	if !util.IsValidImageFile(fileHeader.Filename) {
		util.RespondValidationError(c, "image", "unsupported image type")
		return
	}
	if fileHeader.Size > storage.MaxImageSize {
		util.RespondValidationError(c, "image", "image exceeds the 5MB limit")
		return
	}

	var community models.Community
	if err := database.DB.First(&community, "id = ?", communityID).Error; err != nil {
		util.RespondNotFound(c, "community")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.RespondInternalError(c, "Failed to read upload")
		return
	}
	defer file.Close()

	result, err := h.uploader.UploadCommunityBackground(c.Request.Context(), file, fileHeader, communityID)
	if err != nil {
		logger.Log.Error("Background upload failed",
			zap.String("community_id", communityID),
			zap.Error(err))
		util.RespondInternalError(c, "Failed to store background image")
		return
	}

	oldURL := ""
	if community.Settings == nil {
		community.Settings = &models.CommunitySettings{}
	}
	if community.Settings.Background == nil {
		community.Settings.Background = &models.BackgroundSettings{}
	}
	oldURL = community.Settings.Background.ImageURL
	community.Settings.Background.ImageURL = result.URL

	if err := database.DB.Save(&community).Error; err != nil {
		util.RespondInternalError(c, "Failed to update community settings")
		return
	}

	// The replaced object is garbage now; losing the delete only leaks
	// a stale file.
	if oldURL != "" && oldURL != result.URL {
		go func(url string) {
			key := h.uploader.KeyFromURL(url)
			if key == "" {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.uploader.DeleteFile(ctx, key); err != nil {
				logger.Log.Warn("Failed to delete old background image",
					zap.String("key", key),
					zap.Error(err))
			}
		}(oldURL)
	}

	c.JSON(http.StatusOK, gin.H{
		"url":      result.URL,
		"settings": community.Settings,
	})
}
