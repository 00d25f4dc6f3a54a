package models

import (
	"time"
)

// Pre-verification statuses.
const (
	VerificationStatusVerified = "verified"
	VerificationStatusExpired  = "expired"
)

// DefaultVerificationDuration is how long a pre-verification stays valid when
// neither the board nor the lock overrides it.
const DefaultVerificationDuration = 4 * time.Hour

// PreVerification records that a user satisfied a lock's gating challenge for
// one wallet category. Rows are time-boxed: enforcement always compares
// expires_at against now in SQL, and the janitor flips stale rows to expired.
// Re-verifying upserts the existing (user, lock, category) row.
type PreVerification struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"not null;uniqueIndex:idx_pre_verifications_scope;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`
	LockID int64  `gorm:"not null;uniqueIndex:idx_pre_verifications_scope;index" json:"lock_id"`
	Lock   Lock   `gorm:"foreignKey:LockID" json:"-"`

	CategoryType  string `gorm:"not null;uniqueIndex:idx_pre_verifications_scope" json:"category_type"`
	WalletAddress string `gorm:"not null" json:"wallet_address"`

	// Per-requirement results captured at verification time
	VerificationData map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"verification_data,omitempty"`

	Status     string    `gorm:"not null;default:verified;index" json:"status"`
	VerifiedAt time.Time `gorm:"not null" json:"verified_at"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`

	// GORM fields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PreVerification) TableName() string {
	return "pre_verifications"
}

// Valid reports whether the record still authorizes gated writes.
func (v *PreVerification) Valid(now time.Time) bool {
	return v.Status == VerificationStatusVerified && v.ExpiresAt.After(now)
}
