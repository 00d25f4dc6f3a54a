package models

import (
	"time"

	"gorm.io/gorm"
)

// Comment represents a comment on a Post. Threading is by parent pointer with
// arbitrary depth; listings return the flat set ordered by creation time and
// the client assembles the tree.
type Comment struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID       int64  `gorm:"not null;index" json:"post_id"`
	Post         Post   `gorm:"foreignKey:PostID" json:"-"`
	AuthorUserID string `gorm:"not null;index" json:"author_user_id"`
	Author       User   `gorm:"foreignKey:AuthorUserID" json:"author,omitempty"`

	// Content
	Content string `gorm:"type:text;not null" json:"content"`

	// Threading - parent_comment_id is null for top-level comments
	ParentCommentID *int64   `gorm:"index" json:"parent_comment_id,omitempty"`
	Parent          *Comment `gorm:"foreignKey:ParentCommentID" json:"-"`

	// Edit tracking
	IsEdited bool       `gorm:"default:false" json:"is_edited"`
	EditedAt *time.Time `json:"edited_at,omitempty"`

	// GORM fields
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
