package models

import (
	"fmt"
	"regexp"
	"time"

	"gorm.io/gorm"
)

// Gating category types. A lock bundles one or both wallet ecosystems.
const (
	CategoryUniversalProfile = "universal_profile" // LUKSO
	CategoryEthereumProfile  = "ethereum_profile"  // EVM mainnet
)

// Requirement types evaluated by the chain verifier.
const (
	RequirementNativeBalance  = "native_balance"  // ETH / LYX balance
	RequirementERC20Balance   = "erc20_balance"   // balanceOf(address)
	RequirementERC721Owner    = "erc721_owner"    // balanceOf(address) > 0 or ownerOf(tokenId)
	RequirementERC1155Balance = "erc1155_balance" // balanceOf(address,uint256)
	RequirementLSP7Balance    = "lsp7_balance"    // LUKSO digital asset
	RequirementLSP8Owner      = "lsp8_owner"      // LUKSO identifiable digital asset
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// GatingRequirement is a single on-chain condition inside a category.
type GatingRequirement struct {
	Type            string `json:"type"`
	ContractAddress string `json:"contract_address,omitempty"`
	MinAmount       string `json:"min_amount,omitempty"` // base units, decimal string
	TokenID         string `json:"token_id,omitempty"`   // ERC-721 / ERC-1155
	Name            string `json:"name,omitempty"`
	Symbol          string `json:"symbol,omitempty"`
}

// Validate checks structural soundness; chain-level truth is the verifier's
// job.
func (r *GatingRequirement) Validate() error {
	switch r.Type {
	case RequirementNativeBalance:
		if r.MinAmount == "" {
			return fmt.Errorf("%s requirement needs min_amount", r.Type)
		}
	case RequirementERC20Balance, RequirementLSP7Balance, RequirementERC1155Balance:
		if !addressPattern.MatchString(r.ContractAddress) {
			return fmt.Errorf("%s requirement needs a valid contract_address", r.Type)
		}
		if r.MinAmount == "" {
			return fmt.Errorf("%s requirement needs min_amount", r.Type)
		}
		if r.Type == RequirementERC1155Balance && r.TokenID == "" {
			return fmt.Errorf("%s requirement needs token_id", r.Type)
		}
	case RequirementERC721Owner, RequirementLSP8Owner:
		if !addressPattern.MatchString(r.ContractAddress) {
			return fmt.Errorf("%s requirement needs a valid contract_address", r.Type)
		}
	default:
		return fmt.Errorf("unknown requirement type %q", r.Type)
	}
	return nil
}

// GatingCategory groups requirements for one wallet ecosystem.
type GatingCategory struct {
	Type         string              `json:"type"` // universal_profile, ethereum_profile
	Enabled      bool                `json:"enabled"`
	Fulfillment  string              `json:"fulfillment,omitempty"` // any, all (default all)
	Requirements []GatingRequirement `json:"requirements"`
}

// FulfillsAny reports whether a single passing requirement satisfies the
// category.
func (c *GatingCategory) FulfillsAny() bool {
	return c.Fulfillment == FulfillmentAny
}

// GatingConfig is the jsonb payload describing everything a lock verifies.
// RequireAll decides whether every enabled category must pass or any one.
type GatingConfig struct {
	Categories []GatingCategory `json:"categories"`
	RequireAll bool             `json:"require_all,omitempty"`

	// VerificationDuration is the lock's own pre-verification lifetime
	// in hours. Board settings can override it; zero falls back to the
	// global default.
	VerificationDuration int `json:"verification_duration,omitempty"`
}

// Duration returns the configured verification lifetime, zero when unset.
func (g *GatingConfig) Duration() time.Duration {
	if g.VerificationDuration <= 0 {
		return 0
	}
	return time.Duration(g.VerificationDuration) * time.Hour
}

// Category returns the enabled category of the given type, nil if absent.
func (g *GatingConfig) Category(categoryType string) *GatingCategory {
	for i := range g.Categories {
		if g.Categories[i].Type == categoryType && g.Categories[i].Enabled {
			return &g.Categories[i]
		}
	}
	return nil
}

// Validate checks the whole config shape.
func (g *GatingConfig) Validate() error {
	if len(g.Categories) == 0 {
		return fmt.Errorf("gating config needs at least one category")
	}
	enabled := 0
	for i := range g.Categories {
		c := &g.Categories[i]
		switch c.Type {
		case CategoryUniversalProfile, CategoryEthereumProfile:
		default:
			return fmt.Errorf("unknown category type %q", c.Type)
		}
		if !c.Enabled {
			continue
		}
		enabled++
		if len(c.Requirements) == 0 {
			return fmt.Errorf("category %s is enabled but has no requirements", c.Type)
		}
		for j := range c.Requirements {
			if err := c.Requirements[j].Validate(); err != nil {
				return err
			}
		}
	}
	if enabled == 0 {
		return fmt.Errorf("gating config needs at least one enabled category")
	}
	return nil
}

// Lock is a reusable bundle of gating requirements that can be attached to a
// board (settings.permissions.locks) or a post. Locks are community-scoped
// and shareable; usage stats are cached counters.
type Lock struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CommunityID   string    `gorm:"not null;uniqueIndex:idx_locks_community_name;index" json:"community_id"`
	Community     Community `gorm:"foreignKey:CommunityID" json:"-"`
	CreatorUserID string    `gorm:"not null;index" json:"creator_user_id"`
	Creator       User      `gorm:"foreignKey:CreatorUserID" json:"creator,omitempty"`

	Name        string `gorm:"not null;uniqueIndex:idx_locks_community_name" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Icon        string `json:"icon"`  // emoji shown on gated content
	Color       string `json:"color"` // hex accent for lock badges

	GatingConfig *GatingConfig `gorm:"type:jsonb;serializer:json;not null" json:"gating_config"`

	IsTemplate bool `gorm:"default:false" json:"is_template"`
	IsPublic   bool `gorm:"default:true" json:"is_public"`

	// Usage stats (cached)
	UsageCount            int     `gorm:"default:0" json:"usage_count"`
	SuccessRate           float64 `gorm:"default:0" json:"success_rate"`
	AvgVerificationTimeMs int64   `gorm:"default:0" json:"avg_verification_time_ms"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
