package websocket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/flotob/curia-sub002/internal/auth"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
)

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub             *Hub
	auth            *auth.Service
	allowedOrigins  []string
	presenceManager *PresenceManager
}

// NewHandler creates a new WebSocket handler. allowedOrigins feeds the
// upgrade origin check; empty means any origin is accepted (dev mode).
func NewHandler(hub *Hub, authService *auth.Service, allowedOrigins []string) *Handler {
	return &Handler{
		hub:            hub,
		auth:           authService,
		allowedOrigins: allowedOrigins,
	}
}

// SetPresenceManager sets the presence manager for the handler
func (h *Handler) SetPresenceManager(pm *PresenceManager) {
	h.presenceManager = pm
}

// GetPresenceManager returns the presence manager
func (h *Handler) GetPresenceManager() *PresenceManager {
	return h.presenceManager
}

// HandleWebSocket handles WebSocket upgrade requests
// Authentication is done via session token in query param: ?token=...
// Or via Authorization header: Bearer <token>
func (h *Handler) HandleWebSocket(c *gin.Context) {
	// Extract and validate the session token
	claims, username, err := h.authenticateRequest(c)
	if err != nil {
		log.Printf("WebSocket auth failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	// Upgrade the HTTP connection to WebSocket
	opts := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}
	if len(h.allowedOrigins) > 0 {
		opts.OriginPatterns = h.allowedOrigins
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Create client
	client := NewClient(h.hub, conn, claims.UserID, username, claims.CommunityID)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	// Register client with hub
	h.hub.Register(client)

	// Notify presence manager of connection
	if h.presenceManager != nil {
		h.presenceManager.OnClientConnect(client)
	}

	// Send welcome message
	client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Welcome to Curia!",
		Data: map[string]interface{}{
			"user_id":      claims.UserID,
			"username":     username,
			"community_id": claims.CommunityID,
			"server_time":  time.Now().UTC().UnixMilli(),
			"session_id":   client.ID,
		},
	}))

	// Start client read/write pumps
	go client.WritePump()
	client.ReadPump() // This blocks until client disconnects

	// Client disconnected - notify presence manager
	if h.presenceManager != nil {
		h.presenceManager.OnClientDisconnect(client)
	}
}

// authenticateRequest extracts and validates the session token from the request
func (h *Handler) authenticateRequest(c *gin.Context) (*auth.SessionClaims, string, error) {
	tokenString := ""

	// First check query parameter
	if token := c.Query("token"); token != "" {
		tokenString = token
	}

	// Then check Authorization header
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		// Support "Bearer <token>" format
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			tokenString = authHeader
		}
	}

	if tokenString == "" {
		return nil, "", errors.New("no authentication token provided")
	}

	claims, err := h.auth.ValidateToken(tokenString)
	if err != nil {
		return nil, "", err
	}

	// Fetch the user so deleted accounts cannot reconnect with a live token
	var user models.User
	if err := database.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return nil, "", fmt.Errorf("user not found: %w", err)
	}

	username := user.Name
	if username == "" {
		username = claims.Name
	}

	return claims, username, nil
}

// HandleMetrics returns WebSocket metrics (for monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	metrics := h.hub.GetMetrics()
	c.JSON(http.StatusOK, gin.H{
		"websocket":    metrics,
		"online_users": h.hub.GetOnlineUsers(),
		"timestamp":    time.Now().UTC(),
	})
}

// HandleOnlineStatus checks if specific users are online
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statuses := make(map[string]bool)
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.IsUserOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// presenceEntry is one online user in the REST presence snapshot
type presenceEntry struct {
	UserPresence
	AvatarURL string `json:"avatar_url,omitempty"`
}

// HandlePresence returns the aggregated presence snapshot for the
// caller's community, enriched with profile pictures
func (h *Handler) HandlePresence(c *gin.Context) {
	communityID := c.GetString("community_id")
	if communityID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	if h.presenceManager == nil {
		c.JSON(http.StatusOK, gin.H{
			"users":        []presenceEntry{},
			"online_count": 0,
			"timestamp":    time.Now().UTC(),
		})
		return
	}

	snapshot := h.presenceManager.CommunitySnapshot(communityID)
	avatars := h.lookupAvatars(snapshot)

	entries := make([]presenceEntry, 0, len(snapshot))
	for _, p := range snapshot {
		entries = append(entries, presenceEntry{
			UserPresence: p,
			AvatarURL:    avatars[p.UserID],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"users":        entries,
		"online_count": len(entries),
		"timestamp":    time.Now().UTC(),
	})
}

// lookupAvatars fetches profile pictures for the snapshot in one query
func (h *Handler) lookupAvatars(snapshot []UserPresence) map[string]string {
	avatars := make(map[string]string)
	if database.DB == nil || len(snapshot) == 0 {
		return avatars
	}

	ids := make([]string, 0, len(snapshot))
	for _, p := range snapshot {
		ids = append(ids, p.UserID)
	}

	var rows []struct {
		ID                string
		ProfilePictureURL string
	}
	if err := database.DB.Model(&models.User{}).
		Select("id", "profile_picture_url").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		log.Printf("Error loading avatars for presence snapshot: %v", err)
		return avatars
	}

	for _, row := range rows {
		avatars[row.ID] = row.ProfilePictureURL
	}
	return avatars
}

// NotifyPostCreated announces a new post to everyone in the community
func (h *Handler) NotifyPostCreated(communityID string, payload *PostCreatedPayload) {
	h.hub.BroadcastToRoom(CommunityRoom(communityID), NewMessage(MessageTypePostCreated, payload), nil)
}

// NotifyCommentCreated announces a new comment to viewers of its board
func (h *Handler) NotifyCommentCreated(boardID int64, payload *CommentCreatedPayload) {
	h.hub.BroadcastToRoom(BoardRoom(boardID), NewMessage(MessageTypeCommentCreated, payload), nil)
}

// NotifyReactionUpdate pushes fresh reaction counts to viewers of the board
func (h *Handler) NotifyReactionUpdate(boardID int64, payload *ReactionUpdatePayload) {
	h.hub.BroadcastToRoom(BoardRoom(boardID), NewMessage(MessageTypeReactionUpdate, payload), nil)
}

// NotifyBoardCreated announces a new board to everyone in the community
func (h *Handler) NotifyBoardCreated(communityID string, payload *BoardCreatedPayload) {
	h.hub.BroadcastToRoom(CommunityRoom(communityID), NewMessage(MessageTypeBoardCreated, payload), nil)
}

// Shutdown gracefully shuts down the WebSocket handler
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// GetHub returns the hub for external access
func (h *Handler) GetHub() *Hub {
	return h.hub
}
