package dto

import (
	"time"

	"github.com/flotob/curia-sub002/internal/models"
)

// UserResponse is the public user representation (safe for API responses)
type UserResponse struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	ProfilePictureURL string     `json:"profile_picture_url"`
	IsOnline          bool       `json:"is_online"`
	LastActiveAt      *time.Time `json:"last_active_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// UserDetailResponse includes wallet bindings and settings
// (for the authenticated user viewing their own profile)
type UserDetailResponse struct {
	UserResponse
	WalletAddress *string                `json:"wallet_address,omitempty"`
	LuksoAddress  *string                `json:"lukso_address,omitempty"`
	Settings      map[string]interface{} `json:"settings,omitempty"`
}

// ToUserResponse converts models.User to UserResponse (excludes wallet bindings)
func ToUserResponse(user *models.User) *UserResponse {
	if user == nil {
		return nil
	}

	return &UserResponse{
		ID:                user.ID,
		Name:              user.Name,
		ProfilePictureURL: user.ProfilePictureURL,
		IsOnline:          user.IsOnline,
		LastActiveAt:      user.LastActiveAt,
		CreatedAt:         user.CreatedAt,
	}
}

// ToUserDetailResponse converts models.User to UserDetailResponse (includes wallet bindings)
func ToUserDetailResponse(user *models.User) *UserDetailResponse {
	if user == nil {
		return nil
	}

	return &UserDetailResponse{
		UserResponse:  *ToUserResponse(user),
		WalletAddress: user.WalletAddress,
		LuksoAddress:  user.LuksoAddress,
		Settings:      user.Settings,
	}
}
