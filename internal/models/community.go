package models

import (
	"time"

	"gorm.io/gorm"
)

// BackgroundSettings customizes the community's rendered background inside
// the host iframe. The image URL points at our S3 bucket once an admin
// uploads one; the remaining fields are CSS-level hints passed to the client.
type BackgroundSettings struct {
	ImageURL     string  `json:"image_url,omitempty"`
	Repeat       string  `json:"repeat,omitempty"`   // repeat, no-repeat, repeat-x, repeat-y
	Size         string  `json:"size,omitempty"`     // auto, cover, contain
	Position     string  `json:"position,omitempty"` // center, top, ...
	Opacity      float64 `json:"opacity,omitempty"`
	OverlayColor string  `json:"overlay_color,omitempty"`
	BlendMode    string  `json:"blend_mode,omitempty"`
}

// CommunitySettings is the admin-editable settings blob stored as jsonb.
type CommunitySettings struct {
	AnonymousAccess bool                `json:"anonymous_access,omitempty"`
	Background      *BackgroundSettings `json:"background,omitempty"`
}

// Community is the tenant unit. Like users, communities are owned by the
// Common Ground host: the ID, short ID and plugin ID come from the handshake.
type Community struct {
	ID string `gorm:"primaryKey" json:"id"` // host-assigned ID

	Name string `gorm:"not null" json:"name"`

	// Short ID and plugin ID together form the host share-URL path
	// (/c/<short_id>/plugin/<plugin_id>).
	CommunityShortID string `gorm:"index" json:"community_short_id"`
	PluginID         string `json:"plugin_id"`

	LogoURL  string             `json:"logo_url"`
	Settings *CommunitySettings `gorm:"type:jsonb;serializer:json" json:"settings,omitempty"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Community) TableName() string {
	return "communities"
}
