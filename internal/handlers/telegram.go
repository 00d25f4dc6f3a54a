package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/database"
	apperrors "github.com/flotob/curia-sub002/internal/errors"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/telegram"
	"github.com/flotob/curia-sub002/internal/util"
)

const webhookProcessTimeout = 25 * time.Second

// TelegramWebhook ingests Bot API updates. Telegram retries on non-200,
// so the update is handed off and acknowledged immediately.
// POST /api/telegram/webhook
func (h *Handlers) TelegramWebhook(c *gin.Context) {
	if h.bot == nil {
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("telegram integration"))
		return
	}

	header := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
	if subtle.ConstantTimeCompare([]byte(header), []byte(h.webhookSecret)) != 1 {
		util.RespondUnauthorized(c, "webhook secret mismatch")
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		util.RespondBadRequest(c, "malformed update payload")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
		defer cancel()
		h.bot.ProcessUpdate(ctx, &update)
	}()

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MintTelegramConnectCode issues a single-use code an admin pastes into
// a Telegram group via /connect.
// POST /api/communities/:communityId/telegram/connect-code
func (h *Handlers) MintTelegramConnectCode(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if h.bot == nil || h.redis == nil {
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("telegram integration"))
		return
	}

	code, err := telegram.MintConnectCode(c.Request.Context(), h.redis, communityID, userID)
	if err != nil {
		logger.Log.Error("Failed to mint telegram connect code",
			zap.String("community_id", communityID),
			zap.Error(err))
		util.RespondInternalError(c, "Failed to mint connect code")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":               code,
		"expires_in_seconds": int(cache.ConnectCodeTTL.Seconds()),
		"instructions":       "Add the bot to your group, then send /connect " + code,
	})
}

// SendTestTelegramNotification queues a delivery check to every active
// group so an admin can confirm the binding end to end. Tests ignore
// quiet hours and per-event toggles.
// POST /api/communities/:communityId/telegram/test
func (h *Handlers) SendTestTelegramNotification(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if h.notifier == nil {
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("telegram integration"))
		return
	}

	var active int64
	if err := database.DB.Model(&models.TelegramGroup{}).
		Where("community_id = ? AND is_active = ? AND notifications_enabled = ?", communityID, true, true).
		Count(&active).Error; err != nil {
		util.RespondInternalError(c, "Failed to check telegram groups")
		return
	}
	if active == 0 {
		util.RespondNotFound(c, "active telegram group")
		return
	}

	actorName := "an admin"
	if user, err := h.auth.GetUser(userID); err == nil {
		actorName = user.Name
	}

	event := telegram.NewTestNotification(communityID, actorName)
	if err := h.notifier.Submit(event); err != nil {
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("telegram notifications"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "queued",
		"groups": active,
	})
}

// ListTelegramGroups returns every group bound to the community, active
// or not, with delivery stats.
// GET /api/communities/:communityId/telegram/groups
func (h *Handlers) ListTelegramGroups(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}

	var groups []models.TelegramGroup
	if err := database.DB.
		Where("community_id = ?", communityID).
		Order("created_at ASC").
		Find(&groups).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch telegram groups")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"groups": groups,
		"total":  len(groups),
	})
}

// RemoveTelegramGroup deactivates a group binding. The row survives so
// delivery stats persist across a later /connect.
// DELETE /api/communities/:communityId/telegram/groups/:chatId
func (h *Handlers) RemoveTelegramGroup(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}

	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		util.RespondBadRequest(c, "invalid chat id")
		return
	}

	result := database.DB.Model(&models.TelegramGroup{}).
		Where("chat_id = ? AND community_id = ?", chatID, communityID).
		Updates(map[string]interface{}{
			"is_active":             false,
			"notifications_enabled": false,
		})
	if result.Error != nil {
		util.RespondInternalError(c, "Failed to remove telegram group")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "telegram group")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "disconnected",
		"chat_id": chatID,
	})
}

// UpdateTelegramGroup adjusts a group's notification settings.
// PATCH /api/communities/:communityId/telegram/groups/:chatId
func (h *Handlers) UpdateTelegramGroup(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}

	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		util.RespondBadRequest(c, "invalid chat id")
		return
	}

	var req struct {
		NotificationsEnabled *bool                                `json:"notifications_enabled"`
		NotificationSettings *models.TelegramNotificationSettings `json:"notification_settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var group models.TelegramGroup
	if err := database.DB.
		Where("chat_id = ? AND community_id = ?", chatID, communityID).
		First(&group).Error; err != nil {
		util.RespondNotFound(c, "telegram group")
		return
	}

	if req.NotificationsEnabled != nil {
		group.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.NotificationSettings != nil {
		group.NotificationSettings = req.NotificationSettings
	}

	if err := database.DB.Save(&group).Error; err != nil {
		util.RespondInternalError(c, "Failed to update telegram group")
		return
	}

	c.JSON(http.StatusOK, gin.H{"group": group})
}
