package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrReactionTarget is returned when a reaction does not point at exactly one
// of post, comment or lock.
var ErrReactionTarget = errors.New("reaction must target exactly one of post, comment or lock")

// UpvoteEmoji is the reaction that doubles as a post upvote and feeds the
// post's upvote_count cache.
const UpvoteEmoji = "\U0001F44D" // 👍

// Reaction is an emoji reaction on a post, a comment, or a lock. Exactly one
// of the three target columns is set; the schema enforces this with a CHECK
// constraint and BeforeCreate rejects bad rows before they reach the driver.
type Reaction struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"not null;index;uniqueIndex:idx_reactions_user_post_emoji;uniqueIndex:idx_reactions_user_comment_emoji;uniqueIndex:idx_reactions_user_lock_emoji" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Emoji string `gorm:"not null;size:16;uniqueIndex:idx_reactions_user_post_emoji;uniqueIndex:idx_reactions_user_comment_emoji;uniqueIndex:idx_reactions_user_lock_emoji" json:"emoji"`

	// Exactly one of the following is non-NULL
	PostID    *int64   `gorm:"index;uniqueIndex:idx_reactions_user_post_emoji;check:chk_reactions_single_target,(CASE WHEN post_id IS NULL THEN 0 ELSE 1 END + CASE WHEN comment_id IS NULL THEN 0 ELSE 1 END + CASE WHEN lock_id IS NULL THEN 0 ELSE 1 END) = 1" json:"post_id,omitempty"`
	Post      *Post    `gorm:"foreignKey:PostID" json:"-"`
	CommentID *int64   `gorm:"index;uniqueIndex:idx_reactions_user_comment_emoji" json:"comment_id,omitempty"`
	Comment   *Comment `gorm:"foreignKey:CommentID" json:"-"`
	LockID    *int64   `gorm:"index;uniqueIndex:idx_reactions_user_lock_emoji" json:"lock_id,omitempty"`
	Lock      *Lock    `gorm:"foreignKey:LockID" json:"-"`

	// GORM fields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetCount returns how many target columns are set.
func (r *Reaction) TargetCount() int {
	n := 0
	if r.PostID != nil {
		n++
	}
	if r.CommentID != nil {
		n++
	}
	if r.LockID != nil {
		n++
	}
	return n
}

// BeforeCreate validates the mutual-exclusion rule so callers get a clean
// error instead of a driver-level constraint violation.
func (r *Reaction) BeforeCreate(tx *gorm.DB) error {
	if r.TargetCount() != 1 {
		return ErrReactionTarget
	}
	return nil
}
