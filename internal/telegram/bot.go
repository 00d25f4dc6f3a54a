// Package telegram binds Telegram group chats to communities and pushes
// forum activity into them. A group connects by typing /connect with a
// one-time code minted by a community admin; from then on the notifier
// fans out post, comment and milestone events to it.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/telemetry"
)

// Bot wraps the Telegram Bot API plus the group binding logic driven by
// webhook updates.
type Bot struct {
	api     *tgbotapi.BotAPI
	redis   *cache.RedisClient
	botName string
}

// NewBot connects to the Telegram Bot API. The constructor does a getMe
// round trip, so a bad token fails at startup instead of at first send.
func NewBot(token, botName string, redis *cache.RedisClient) (*Bot, error) {
	client := telemetry.NewInstrumentedHTTPClient(telemetry.HTTPClientConfig{
		ServiceName: "telegram",
		Timeout:     30 * time.Second,
	})

	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to reach Telegram Bot API: %w", err)
	}

	logger.Log.Info("✅ Telegram bot connected",
		zap.String("username", api.Self.UserName),
	)

	return &Bot{api: api, redis: redis, botName: botName}, nil
}

// RegisterWebhook points the Telegram API at our update endpoint. The
// secret token comes back on every update so the webhook handler can
// reject spoofed requests.
func (b *Bot) RegisterWebhook(publicBaseURL, secret string) error {
	params := tgbotapi.Params{
		"url":             publicBaseURL + "/api/telegram/webhook",
		"secret_token":    secret,
		"allowed_updates": `["message"]`,
	}
	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	logger.Log.Info("✅ Telegram webhook registered",
		zap.String("url", publicBaseURL+"/api/telegram/webhook"),
	)
	return nil
}

// SendHTML delivers an HTML-formatted message to a chat.
func (b *Bot) SendHTML(ctx context.Context, chatID int64, text string) error {
	_, span := telemetry.TraceTelegramCall(ctx, "sendMessage", map[string]interface{}{
		"chat_id":        chatID,
		"message_length": len(text),
	})
	defer span.End()

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := b.api.Send(msg); err != nil {
		telemetry.RecordServiceError(span, "telegram", err)
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	telemetry.RecordServiceSuccess(span, nil)
	return nil
}

// ProcessUpdate handles one webhook update. Only commands are acted on;
// ordinary group chatter passes through untouched.
func (b *Bot) ProcessUpdate(ctx context.Context, update *tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}

	reply := b.handleCommand(ctx, msg)
	if reply == "" {
		return
	}

	if err := b.SendHTML(ctx, msg.Chat.ID, reply); err != nil {
		logger.Log.Error("Failed to reply to telegram command",
			zap.String("command", msg.Command()),
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Error(err),
		)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) string {
	switch msg.Command() {
	case "start":
		return b.startText()
	case "help":
		return b.helpText()
	case "connect":
		return b.handleConnect(ctx, msg)
	case "disconnect":
		return b.handleDisconnect(ctx, msg)
	case "status":
		return b.handleStatus(ctx, msg)
	default:
		return ""
	}
}

func (b *Bot) handleConnect(ctx context.Context, msg *tgbotapi.Message) string {
	if msg.Chat.IsPrivate() {
		return "Add me to your community's group chat first, then run /connect there."
	}

	code := strings.ToUpper(strings.TrimSpace(msg.CommandArguments()))
	if code == "" {
		return "Usage: <code>/connect CODE</code>\nA community admin can generate a code in the forum's Telegram settings."
	}

	payload, err := b.claimConnectCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return "That code is invalid or has expired. Codes are single use and valid for 10 minutes."
		}
		logger.Log.Error("Failed to claim connect code", zap.Error(err))
		return "Something went wrong on our side, please try again."
	}

	group := &models.TelegramGroup{
		ChatID:               msg.Chat.ID,
		CommunityID:          payload.CommunityID,
		ChatTitle:            msg.Chat.Title,
		RegisteredByUserID:   payload.IssuedByUserID,
		NotificationsEnabled: true,
		IsActive:             true,
	}

	err = database.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"community_id":          payload.CommunityID,
			"chat_title":            msg.Chat.Title,
			"registered_by_user_id": payload.IssuedByUserID,
			"notifications_enabled": true,
			"is_active":             true,
			"deleted_at":            nil,
		}),
	}).Create(group).Error
	if err != nil {
		logger.Log.Error("Failed to register telegram group",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.String("community_id", payload.CommunityID),
			zap.Error(err),
		)
		return "Something went wrong on our side, please try again."
	}

	var community models.Community
	communityName := payload.CommunityID
	if err := database.DB.WithContext(ctx).First(&community, "id = ?", payload.CommunityID).Error; err == nil {
		communityName = community.Name
	}

	logger.Log.Info("📣 Telegram group connected",
		zap.Int64("chat_id", msg.Chat.ID),
		zap.String("community_id", payload.CommunityID),
	)

	return fmt.Sprintf(
		"Connected! This group now receives activity from <b>%s</b>.\nUse /status anytime, /disconnect to stop.",
		html.EscapeString(communityName),
	)
}

func (b *Bot) handleDisconnect(ctx context.Context, msg *tgbotapi.Message) string {
	res := database.DB.WithContext(ctx).
		Model(&models.TelegramGroup{}).
		Where("chat_id = ? AND is_active = ?", msg.Chat.ID, true).
		Update("is_active", false)

	if res.Error != nil {
		logger.Log.Error("Failed to disconnect telegram group",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Error(res.Error),
		)
		return "Something went wrong on our side, please try again."
	}
	if res.RowsAffected == 0 {
		return "This group isn't connected to any community."
	}

	logger.Log.Info("📣 Telegram group disconnected", zap.Int64("chat_id", msg.Chat.ID))
	return "Disconnected. Run /connect with a fresh code to resume notifications."
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) string {
	var group models.TelegramGroup
	err := database.DB.WithContext(ctx).
		Preload("Community").
		First(&group, "chat_id = ?", msg.Chat.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "This group isn't connected to any community. Run <code>/connect CODE</code> to bind it."
	}
	if err != nil {
		logger.Log.Error("Failed to load telegram group status",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Error(err),
		)
		return "Something went wrong on our side, please try again."
	}

	if !group.IsActive {
		return "Notifications for this group are turned off. Run <code>/connect CODE</code> to resume."
	}

	last := "never"
	if group.LastNotificationAt != nil {
		last = group.LastNotificationAt.UTC().Format("2006-01-02 15:04 MST")
	}

	return fmt.Sprintf(
		"Connected to <b>%s</b> since %s.\nNotifications delivered: %d\nLast delivery: %s",
		html.EscapeString(group.Community.Name),
		group.CreatedAt.UTC().Format("2006-01-02"),
		group.NotificationCount,
		last,
	)
}
