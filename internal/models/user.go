package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a forum participant. Identity is owned by the Common Ground
// host platform: the ID, name and picture arrive with the session handshake
// and are upserted here, never registered directly.
type User struct {
	ID                string `gorm:"primaryKey" json:"id"` // host-assigned ID
	Name              string `gorm:"not null" json:"name"`
	ProfilePictureURL string `json:"profile_picture_url"`

	// Linked wallet addresses used by gating verification
	WalletAddress *string `gorm:"index" json:"wallet_address,omitempty"` // EVM EOA
	LuksoAddress  *string `gorm:"index" json:"lukso_address,omitempty"`  // Universal Profile

	// Free-form per-user settings (notification toggles etc.)
	Settings map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"settings,omitempty"`

	// Activity tracking
	LastActiveAt *time.Time `json:"last_active_at"`
	IsOnline     bool       `gorm:"default:false" json:"is_online"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// UserCommunity tracks a user's membership and visit history in a community.
// last_visited_at is the cutoff the what's-new digest defaults to.
type UserCommunity struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string    `gorm:"not null;uniqueIndex:idx_user_communities_pair" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID" json:"-"`
	CommunityID string    `gorm:"not null;uniqueIndex:idx_user_communities_pair;index" json:"community_id"`
	Community   Community `gorm:"foreignKey:CommunityID" json:"-"`

	Role           string    `gorm:"default:member" json:"role"` // member, moderator, admin, owner
	FirstVisitedAt time.Time `gorm:"not null" json:"first_visited_at"`
	LastVisitedAt  time.Time `gorm:"not null;index" json:"last_visited_at"`
	VisitCount     int       `gorm:"default:1" json:"visit_count"`

	// GORM fields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserCommunity) TableName() string {
	return "user_communities"
}

// Membership roles.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
	RoleOwner     = "owner"
)

// IsAdminRole reports whether a membership role carries admin rights.
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleOwner
}

// UserFriend is a host-synced friendship edge. The host platform owns the
// social graph; we mirror the slice of it the user shares at session time so
// presence and what's-new can rank friends first.
type UserFriend struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"not null;uniqueIndex:idx_user_friends_pair" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	FriendUserID   string `gorm:"not null;uniqueIndex:idx_user_friends_pair;index" json:"friend_user_id"`
	FriendName     string `json:"friend_name"`
	FriendImageURL string `json:"friend_image_url"`

	SyncedAt time.Time `gorm:"not null" json:"synced_at"`

	// GORM fields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserFriend) TableName() string {
	return "user_friends"
}
