package models

import (
	"database/sql/driver"
	"strings"
	"time"

	"gorm.io/gorm"
)

// StringArray is a custom type for PostgreSQL text[] that implements Scanner and Valuer
type StringArray []string

// Scan implements the sql.Scanner interface for reading from database
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	// PostgreSQL returns text[] as a string like "{value1,value2,value3}"
	str, ok := value.(string)
	if !ok {
		// Try []byte
		if bytes, ok := value.([]byte); ok {
			str = string(bytes)
		} else {
			*a = nil
			return nil
		}
	}

	// Remove the curly braces
	str = strings.TrimPrefix(str, "{")
	str = strings.TrimSuffix(str, "}")

	if str == "" {
		*a = []string{}
		return nil
	}

	// Split by comma (simple case - doesn't handle quoted values with commas)
	*a = strings.Split(str, ",")
	return nil
}

// Value implements the driver.Valuer interface for writing to database
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	if len(a) == 0 {
		return "{}", nil
	}
	return "{" + strings.Join(a, ",") + "}", nil
}

// ResponsePermissions gates who may comment on a post, on top of the board's
// own gating.
type ResponsePermissions struct {
	Locks *LockGating `json:"locks,omitempty"`
}

// PostSettings is the per-post settings blob stored as jsonb.
type PostSettings struct {
	ResponsePermissions *ResponsePermissions `json:"response_permissions,omitempty"`
}

// CommentGating returns the post-level lock gating for replies, nil when
// ungated.
func (s *PostSettings) CommentGating() *LockGating {
	if s == nil || s.ResponsePermissions == nil || s.ResponsePermissions.Locks == nil {
		return nil
	}
	if len(s.ResponsePermissions.Locks.LockIDs) == 0 {
		return nil
	}
	return s.ResponsePermissions.Locks
}

// Post is a forum post within a board.
type Post struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorUserID string `gorm:"not null;index" json:"author_user_id"`
	Author       User   `gorm:"foreignKey:AuthorUserID" json:"author,omitempty"`
	BoardID      int64  `gorm:"not null;index:idx_posts_board_created" json:"board_id"`
	Board        Board  `gorm:"foreignKey:BoardID" json:"-"`

	Title   string      `gorm:"not null" json:"title"`
	Content string      `gorm:"type:text;not null" json:"content"` // markdown
	Tags    StringArray `gorm:"type:text[]" json:"tags"`

	// Optional lock attached directly to the post (shareable gating shortcut)
	LockID *int64 `gorm:"index" json:"lock_id,omitempty"`
	Lock   *Lock  `gorm:"foreignKey:LockID" json:"-"`

	Settings *PostSettings `gorm:"type:jsonb;serializer:json" json:"settings,omitempty"`

	// Cached counters, maintained with atomic SQL updates
	UpvoteCount  int `gorm:"default:0" json:"upvote_count"`
	CommentCount int `gorm:"default:0" json:"comment_count"`

	// Edit tracking
	IsEdited bool       `gorm:"default:false" json:"is_edited"`
	EditedAt *time.Time `json:"edited_at,omitempty"`

	// GORM fields
	CreatedAt time.Time      `gorm:"index:idx_posts_board_created,sort:desc" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
