package models

import (
	"time"

	"gorm.io/gorm"
)

// LockGating configures which locks gate write access and how many of them a
// user must have verified. VerificationDuration (hours) overrides the lock
// default for pre-verifications performed in this scope.
type LockGating struct {
	LockIDs              []int64 `json:"lock_ids,omitempty"`
	Fulfillment          string  `json:"fulfillment,omitempty"` // any, all
	VerificationDuration int     `json:"verification_duration,omitempty"`
}

// FulfillsAll reports whether every listed lock must be verified.
func (g *LockGating) FulfillsAll() bool {
	return g != nil && g.Fulfillment == FulfillmentAll
}

// BoardPermissions restricts who can see and write to a board. An empty
// AllowedRoles slice means every community member; lock gating applies to
// writes only.
type BoardPermissions struct {
	AllowedRoles []string    `json:"allowed_roles,omitempty"` // host role IDs
	Locks        *LockGating `json:"locks,omitempty"`
}

// BoardSettings is the admin-editable settings blob stored as jsonb.
type BoardSettings struct {
	Permissions *BoardPermissions `json:"permissions,omitempty"`
}

// RoleAllowed reports whether any of the caller's host roles grants access.
func (s *BoardSettings) RoleAllowed(roles []string) bool {
	if s == nil || s.Permissions == nil || len(s.Permissions.AllowedRoles) == 0 {
		return true
	}
	for _, allowed := range s.Permissions.AllowedRoles {
		for _, r := range roles {
			if r == allowed {
				return true
			}
		}
	}
	return false
}

// LockGating returns the board's lock gating config, nil when ungated.
func (s *BoardSettings) LockGating() *LockGating {
	if s == nil || s.Permissions == nil || s.Permissions.Locks == nil {
		return nil
	}
	if len(s.Permissions.Locks.LockIDs) == 0 {
		return nil
	}
	return s.Permissions.Locks
}

// Fulfillment modes for lock gating.
const (
	FulfillmentAny = "any"
	FulfillmentAll = "all"
)

// Board is a discussion channel within a community.
type Board struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CommunityID string    `gorm:"not null;uniqueIndex:idx_boards_community_slug;index" json:"community_id"`
	Community   Community `gorm:"foreignKey:CommunityID" json:"-"`

	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"not null;uniqueIndex:idx_boards_community_slug" json:"slug"`
	Description string `gorm:"type:text" json:"description"`

	Settings *BoardSettings `gorm:"type:jsonb;serializer:json" json:"settings,omitempty"`

	// Cached counters, maintained with atomic SQL updates
	PostCount int `gorm:"default:0" json:"post_count"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
