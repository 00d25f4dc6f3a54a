package models

import (
	"time"

	"gorm.io/gorm"
)

// Telegram notification event keys used in NotificationSettings.
const (
	TelegramEventPostCreated     = "post_created"
	TelegramEventCommentCreated  = "comment_created"
	TelegramEventUpvoteMilestone = "upvote_milestone"
	TelegramEventDailyDigest     = "daily_digest"
	TelegramEventTest            = "test"
)

// TelegramNotificationSettings toggles individual forum events per group.
// Zero value means everything on.
type TelegramNotificationSettings struct {
	PostCreated      *bool `json:"post_created,omitempty"`
	CommentCreated   *bool `json:"comment_created,omitempty"`
	UpvoteMilestone  *bool `json:"upvote_milestone,omitempty"`
	DailyDigest      *bool `json:"daily_digest,omitempty"`
	QuietHoursStart  int   `json:"quiet_hours_start,omitempty"` // hour 0-23, UTC
	QuietHoursEnd    int   `json:"quiet_hours_end,omitempty"`   // exclusive; equal to start disables
	IncludeShareLink *bool `json:"include_share_link,omitempty"`
}

// EventEnabled reports whether the given event should be delivered.
func (s *TelegramNotificationSettings) EventEnabled(event string) bool {
	if s == nil {
		return true
	}
	var flag *bool
	switch event {
	case TelegramEventPostCreated:
		flag = s.PostCreated
	case TelegramEventCommentCreated:
		flag = s.CommentCreated
	case TelegramEventUpvoteMilestone:
		flag = s.UpvoteMilestone
	case TelegramEventDailyDigest:
		flag = s.DailyDigest
	case TelegramEventTest:
		// An admin asked for this one explicitly; no toggle mutes it.
		return true
	default:
		return false
	}
	return flag == nil || *flag
}

// InQuietHours reports whether t falls inside the group's quiet window.
// The window may wrap midnight.
func (s *TelegramNotificationSettings) InQuietHours(t time.Time) bool {
	if s == nil || s.QuietHoursStart == s.QuietHoursEnd {
		return false
	}
	h := t.UTC().Hour()
	if s.QuietHoursStart < s.QuietHoursEnd {
		return h >= s.QuietHoursStart && h < s.QuietHoursEnd
	}
	return h >= s.QuietHoursStart || h < s.QuietHoursEnd
}

// ShareLinkEnabled reports whether messages should carry a share URL back
// into the forum.
func (s *TelegramNotificationSettings) ShareLinkEnabled() bool {
	return s == nil || s.IncludeShareLink == nil || *s.IncludeShareLink
}

// TelegramGroup binds a Telegram group chat to a community for notification
// fan-out. Bindings are created through the /connect <code> bot command and
// deactivated rather than deleted so delivery stats survive re-connects.
type TelegramGroup struct {
	ChatID      int64     `gorm:"primaryKey;autoIncrement:false" json:"chat_id"`
	CommunityID string    `gorm:"not null;index" json:"community_id"`
	Community   Community `gorm:"foreignKey:CommunityID" json:"-"`

	ChatTitle          string `json:"chat_title"`
	RegisteredByUserID string `gorm:"not null" json:"registered_by_user_id"`
	RegisteredBy       User   `gorm:"foreignKey:RegisteredByUserID" json:"-"`

	NotificationsEnabled bool                          `gorm:"default:true" json:"notifications_enabled"`
	NotificationSettings *TelegramNotificationSettings `gorm:"type:jsonb;serializer:json" json:"notification_settings,omitempty"`
	BotPermissions       map[string]interface{}        `gorm:"type:jsonb;serializer:json" json:"bot_permissions,omitempty"`

	IsActive           bool       `gorm:"default:true;index" json:"is_active"`
	LastNotificationAt *time.Time `json:"last_notification_at,omitempty"`
	NotificationCount  int64      `gorm:"default:0" json:"notification_count"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (TelegramGroup) TableName() string {
	return "telegram_groups"
}
