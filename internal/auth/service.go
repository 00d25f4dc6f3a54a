package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidToken     = errors.New("invalid session token")
	ErrInvalidSignature = errors.New("invalid session signature")
	ErrStaleTimestamp   = errors.New("session timestamp outside allowed window")
)

// Service issues and validates forum sessions. Identity is asserted by
// the Common Ground host via a signed handshake payload; users never
// register here directly.
type Service struct {
	jwtSecret     []byte
	sessionSecret []byte
	ttl           time.Duration
}

// NewService creates a session service. sessionSecret may be empty, in
// which case handshake signatures are not enforced (dev mode).
func NewService(jwtSecret, sessionSecret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		jwtSecret:     jwtSecret,
		sessionSecret: sessionSecret,
		ttl:           ttl,
	}
}

// SessionRequest is the host handshake payload.
type SessionRequest struct {
	UserID            string          `json:"userId" binding:"required"`
	Name              string          `json:"name"`
	ProfilePictureURL string          `json:"profilePictureUrl"`
	Roles             []string        `json:"roles"`
	AdminRoleIDs      []string        `json:"adminRoleIds"`
	Owner             bool            `json:"owner"`
	CommunityID       string          `json:"communityId" binding:"required"`
	CommunityName     string          `json:"communityName"`
	CommunityShortID  string          `json:"communityShortId"`
	PluginID          string          `json:"pluginId"`
	CommunityLogoURL  string          `json:"communityLogoUrl"`
	WalletAddress     *string         `json:"walletAddress"`
	LuksoAddress      *string         `json:"luksoAddress"`
	Friends           []FriendPayload `json:"friends"`
	IssuedAt          int64           `json:"iat"`
	Signature         string          `json:"signature"`
}

// FriendPayload is one entry of the host's friends sync.
type FriendPayload struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// SessionClaims are the decoded contents of a session token.
type SessionClaims struct {
	UserID      string
	Name        string
	Picture     string
	CommunityID string
	Roles       []string
	IsAdmin     bool
	ExpiresAt   time.Time
}

// EstablishSession processes a host handshake: verifies the signature
// when a session secret is configured, upserts the user, community and
// membership rows, syncs friends when the payload carries them, and
// issues a signed session token.
func (s *Service) EstablishSession(req *SessionRequest) (*AuthResponse, error) {
	if len(s.sessionSecret) > 0 {
		if err := s.verifySignature(req); err != nil {
			return nil, err
		}
	}

	isAdmin := req.Owner || hasAdminRole(req.Roles, req.AdminRoleIDs)

	var user models.User
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := upsertUser(tx, req, &user); err != nil {
			return err
		}
		if err := upsertCommunity(tx, req); err != nil {
			return err
		}
		if err := upsertMembership(tx, req, isAdmin); err != nil {
			return err
		}
		if len(req.Friends) > 0 {
			if err := syncFriends(tx, req.UserID, req.Friends); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session upsert failed: %w", err)
	}

	return s.generateAuthResponse(&user, req.CommunityID, req.Roles, isAdmin)
}

// generateAuthResponse creates JWT token and auth response
func (s *Service) generateAuthResponse(user *models.User, communityID string, roles []string, isAdmin bool) (*AuthResponse, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := jwt.MapClaims{
		"sub":         user.ID,
		"name":        user.Name,
		"picture":     user.ProfilePictureURL,
		"communityId": communityID,
		"roles":       roles,
		"adm":         isAdmin,
		"exp":         expiresAt.Unix(),
		"iat":         now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &AuthResponse{
		Token:     tokenString,
		User:      *user,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken validates a session token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrInvalidToken
	}

	out := &SessionClaims{UserID: sub}
	if v, ok := claims["name"].(string); ok {
		out.Name = v
	}
	if v, ok := claims["picture"].(string); ok {
		out.Picture = v
	}
	if v, ok := claims["communityId"].(string); ok {
		out.CommunityID = v
	}
	if v, ok := claims["adm"].(bool); ok {
		out.IsAdmin = v
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				out.Roles = append(out.Roles, role)
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	return out, nil
}

// SyncFriends replaces the user's host-synced friends list outside of
// a handshake.
func (s *Service) SyncFriends(userID string, friends []FriendPayload) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		return syncFriends(tx, userID, friends)
	})
}

// GetUser loads a user by host-assigned ID.
func (s *Service) GetUser(userID string) (*models.User, error) {
	var user models.User
	err := database.DB.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func hasAdminRole(roles, adminRoleIDs []string) bool {
	for _, r := range roles {
		for _, a := range adminRoleIDs {
			if r == a && a != "" {
				return true
			}
		}
	}
	return false
}

func upsertUser(tx *gorm.DB, req *SessionRequest, out *models.User) error {
	now := time.Now()
	user := models.User{
		ID:                req.UserID,
		Name:              req.Name,
		ProfilePictureURL: req.ProfilePictureURL,
		WalletAddress:     req.WalletAddress,
		LuksoAddress:      req.LuksoAddress,
		LastActiveAt:      &now,
	}

	// Linked addresses only move forward: an absent address in the
	// payload must not wipe one linked earlier.
	assignments := map[string]interface{}{
		"name":                req.Name,
		"profile_picture_url": req.ProfilePictureURL,
		"last_active_at":      now,
	}
	if req.WalletAddress != nil {
		assignments["wallet_address"] = *req.WalletAddress
	}
	if req.LuksoAddress != nil {
		assignments["lukso_address"] = *req.LuksoAddress
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&user).Error; err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return tx.Where("id = ?", req.UserID).First(out).Error
}

func upsertCommunity(tx *gorm.DB, req *SessionRequest) error {
	community := models.Community{
		ID:               req.CommunityID,
		Name:             req.CommunityName,
		CommunityShortID: req.CommunityShortID,
		PluginID:         req.PluginID,
		LogoURL:          req.CommunityLogoURL,
	}

	assignments := map[string]interface{}{}
	if req.CommunityName != "" {
		assignments["name"] = req.CommunityName
	}
	if req.CommunityShortID != "" {
		assignments["community_short_id"] = req.CommunityShortID
	}
	if req.PluginID != "" {
		assignments["plugin_id"] = req.PluginID
	}
	if req.CommunityLogoURL != "" {
		assignments["logo_url"] = req.CommunityLogoURL
	}
	if len(assignments) == 0 {
		assignments["updated_at"] = time.Now()
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&community).Error; err != nil {
		return fmt.Errorf("upsert community: %w", err)
	}
	return nil
}

func upsertMembership(tx *gorm.DB, req *SessionRequest, isAdmin bool) error {
	role := models.RoleMember
	if isAdmin {
		role = models.RoleAdmin
	}
	if req.Owner {
		role = models.RoleOwner
	}

	now := time.Now()
	var membership models.UserCommunity
	err := tx.Where("user_id = ? AND community_id = ?", req.UserID, req.CommunityID).
		First(&membership).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		membership = models.UserCommunity{
			UserID:         req.UserID,
			CommunityID:    req.CommunityID,
			Role:           role,
			FirstVisitedAt: now,
			LastVisitedAt:  now,
			VisitCount:     1,
		}
		return tx.Create(&membership).Error
	} else if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}

	// Owners stay owners even when the host stops sending the flag.
	if membership.Role != models.RoleOwner {
		membership.Role = role
	}
	membership.LastVisitedAt = now
	membership.VisitCount++
	return tx.Save(&membership).Error
}

// syncFriends replaces the user's friend list with the host payload.
// Rows absent from the payload are removed so the list mirrors the host.
func syncFriends(tx *gorm.DB, userID string, friends []FriendPayload) error {
	now := time.Now()
	keep := make([]string, 0, len(friends))

	for _, f := range friends {
		if f.ID == "" || f.ID == userID {
			continue
		}
		keep = append(keep, f.ID)
		row := models.UserFriend{
			UserID:         userID,
			FriendUserID:   f.ID,
			FriendName:     f.Name,
			FriendImageURL: f.ImageURL,
			SyncedAt:       now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "friend_user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"friend_name":      f.Name,
				"friend_image_url": f.ImageURL,
				"synced_at":        now,
			}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert friend %s: %w", f.ID, err)
		}
	}

	q := tx.Where("user_id = ?", userID)
	if len(keep) > 0 {
		q = q.Where("friend_user_id NOT IN ?", keep)
	}
	if err := q.Delete(&models.UserFriend{}).Error; err != nil {
		return fmt.Errorf("prune stale friends: %w", err)
	}
	return nil
}
