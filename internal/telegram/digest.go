package telegram

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/models"
)

// digestWindow is how far back the daily digest looks.
const digestWindow = 24 * time.Hour

// DigestStats aggregates one community's forum activity for the digest.
type DigestStats struct {
	CommunityID    string
	PostCount      int64
	CommentCount   int64
	TopPostID      int64
	TopPostBoardID int64
	TopPostTitle   string
	TopPostUpvotes int
}

// SendDailyDigests summarizes the last day of forum activity for every
// community with connected Telegram groups and posts the summary into
// each group. Communities without activity stay quiet. Returns how many
// messages went out.
func (n *Notifier) SendDailyDigests(ctx context.Context) (int, error) {
	var communityIDs []string
	err := database.DB.WithContext(ctx).
		Model(&models.TelegramGroup{}).
		Where("is_active = ? AND notifications_enabled = ?", true, true).
		Distinct().
		Pluck("community_id", &communityIDs).Error
	if err != nil {
		return 0, fmt.Errorf("list digest communities: %w", err)
	}

	sent := 0
	for _, communityID := range communityIDs {
		count, err := n.sendCommunityDigest(ctx, communityID)
		if err != nil {
			logger.Log.Warn("Daily digest failed for community",
				zap.String("community_id", communityID),
				zap.Error(err),
			)
			continue
		}
		sent += count
	}

	if sent > 0 {
		logger.Log.Info("✅ Daily digests delivered", zap.Int("messages", sent))
	}
	return sent, nil
}

func (n *Notifier) sendCommunityDigest(ctx context.Context, communityID string) (int, error) {
	stats, err := collectDigestStats(ctx, communityID, time.Now().Add(-digestWindow))
	if err != nil {
		return 0, err
	}
	if stats.PostCount == 0 && stats.CommentCount == 0 {
		return 0, nil
	}

	var community models.Community
	if err := database.DB.WithContext(ctx).First(&community, "id = ?", communityID).Error; err != nil {
		return 0, fmt.Errorf("load community: %w", err)
	}

	var groups []models.TelegramGroup
	err = database.DB.WithContext(ctx).
		Where("community_id = ? AND is_active = ? AND notifications_enabled = ?",
			communityID, true, true).
		Find(&groups).Error
	if err != nil {
		return 0, fmt.Errorf("load groups: %w", err)
	}

	link := ""
	if stats.TopPostID != 0 {
		link = n.mintShareURL(ctx, stats.TopPostBoardID, stats.TopPostID, &community)
	}

	now := time.Now()
	sent := 0
	for i := range groups {
		group := &groups[i]
		settings := group.NotificationSettings
		if !settings.EventEnabled(models.TelegramEventDailyDigest) || settings.InQuietHours(now) {
			continue
		}

		groupLink := ""
		if settings.ShareLinkEnabled() {
			groupLink = link
		}

		if err := n.sender.SendHTML(ctx, group.ChatID, formatDailyDigest(community.Name, stats, groupLink)); err != nil {
			logger.Log.Warn("⚠️ Telegram digest delivery failed",
				zap.Int64("chat_id", group.ChatID),
				zap.Error(err),
			)
			middleware.RecordTelegramNotification(models.TelegramEventDailyDigest, "failed")
			continue
		}
		sent++
		middleware.RecordTelegramNotification(models.TelegramEventDailyDigest, "sent")
		n.recordDelivery(ctx, group.ChatID, now)
	}
	return sent, nil
}

// collectDigestStats runs the per-community aggregates for the window.
func collectDigestStats(ctx context.Context, communityID string, since time.Time) (*DigestStats, error) {
	db := database.DB.WithContext(ctx)
	stats := &DigestStats{CommunityID: communityID}

	err := db.Model(&models.Post{}).
		Joins("JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL").
		Where("boards.community_id = ? AND posts.created_at > ?", communityID, since).
		Count(&stats.PostCount).Error
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	err = db.Model(&models.Comment{}).
		Joins("JOIN posts ON posts.id = comments.post_id AND posts.deleted_at IS NULL").
		Joins("JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL").
		Where("boards.community_id = ? AND comments.created_at > ?", communityID, since).
		Count(&stats.CommentCount).Error
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}

	var top struct {
		ID          int64
		BoardID     int64
		Title       string
		UpvoteCount int
	}
	err = db.Model(&models.Post{}).
		Select("posts.id, posts.board_id, posts.title, posts.upvote_count").
		Joins("JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL").
		Where("boards.community_id = ? AND posts.created_at > ?", communityID, since).
		Order("posts.upvote_count DESC, posts.id ASC").
		Limit(1).
		Scan(&top).Error
	if err != nil {
		return nil, fmt.Errorf("find top post: %w", err)
	}
	stats.TopPostID = top.ID
	stats.TopPostBoardID = top.BoardID
	stats.TopPostTitle = top.Title
	stats.TopPostUpvotes = top.UpvoteCount

	return stats, nil
}
