// Package websocket provides presence tracking for real-time user status.
package websocket

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
)

// Presence status values carried in PresencePayload.Status
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Device is one live connection of a user. The same person counts once
// in presence no matter how many tabs or phones they connect from.
type Device struct {
	ConnectionID string    `json:"connection_id"`
	BoardID      int64     `json:"board_id,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// UserPresence is the aggregated view of one online user
type UserPresence struct {
	UserID      string   `json:"user_id"`
	UserName    string   `json:"user_name"`
	CommunityID string   `json:"community_id"`
	Devices     []Device `json:"devices"`

	// ConnectedAt is the earliest device connect, LastSeenAt the latest activity
	ConnectedAt time.Time `json:"connected_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// userRecord is the mutable presence state for one user
type userRecord struct {
	userID      string
	userName    string
	communityID string
	devices     map[string]*Device
}

// PresenceManager tracks who is online per community and which board each
// connection is viewing, and broadcasts changes into the right rooms
type PresenceManager struct {
	hub *Hub

	// In-memory presence storage by user ID
	presence map[string]*userRecord
	mu       sync.RWMutex

	// Configuration
	timeoutDuration time.Duration // How long before a silent device is dropped

	// Shutdown handling
	ctx    context.Context
	cancel context.CancelFunc
}

// PresenceConfig holds configuration for the presence manager
type PresenceConfig struct {
	TimeoutDuration time.Duration // Default: 5 minutes
}

// DefaultPresenceConfig returns sensible defaults
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		TimeoutDuration: 5 * time.Minute,
	}
}

// NewPresenceManager creates a new presence manager
func NewPresenceManager(hub *Hub, config PresenceConfig) *PresenceManager {
	ctx, cancel := context.WithCancel(context.Background())

	if config.TimeoutDuration == 0 {
		config.TimeoutDuration = 5 * time.Minute
	}

	return &PresenceManager{
		hub:             hub,
		presence:        make(map[string]*userRecord),
		timeoutDuration: config.TimeoutDuration,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start begins the presence manager's background tasks
func (pm *PresenceManager) Start() {
	log.Println("👤 Presence manager starting...")

	// Start timeout checker
	go pm.runTimeoutChecker()

	// Register message handlers with the hub
	pm.registerHandlers()

	log.Println("👤 Presence manager started")
}

// Stop gracefully shuts down the presence manager
func (pm *PresenceManager) Stop() {
	log.Println("👤 Presence manager stopping...")
	pm.cancel()

	// Mark everyone offline
	pm.mu.Lock()
	records := make([]*userRecord, 0, len(pm.presence))
	for _, rec := range pm.presence {
		records = append(records, rec)
	}
	pm.presence = make(map[string]*userRecord)
	pm.mu.Unlock()

	for _, rec := range records {
		go pm.updateDatabasePresence(rec.userID, false)
	}

	log.Println("👤 Presence manager stopped")
}

// registerHandlers sets up message handlers for room and typing messages
func (pm *PresenceManager) registerHandlers() {
	pm.hub.RegisterHandler(MessageTypeJoinBoard, func(client *Client, msg *Message) error {
		var payload JoinBoardPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return err
		}
		if payload.BoardID <= 0 {
			client.SendError("invalid_board", "board_id is required")
			return nil
		}

		pm.JoinBoard(client, payload.BoardID)
		return nil
	})

	pm.hub.RegisterHandler(MessageTypeLeaveBoard, func(client *Client, msg *Message) error {
		pm.LeaveBoard(client)
		return nil
	})

	pm.hub.RegisterHandler(MessageTypeTyping, func(client *Client, msg *Message) error {
		pm.relayTyping(client, msg, MessageTypeUserTyping)
		return nil
	})

	pm.hub.RegisterHandler(MessageTypeTypingStop, func(client *Client, msg *Message) error {
		pm.relayTyping(client, msg, MessageTypeUserStoppedTyping)
		return nil
	})
}

// OnClientConnect is called when a client connects. The first device of a
// user announces them online to the community room; every device gets a
// presence_sync snapshot of who is already here.
func (pm *PresenceManager) OnClientConnect(client *Client) {
	now := time.Now()

	pm.mu.Lock()
	rec := pm.presence[client.UserID]
	firstDevice := rec == nil || len(rec.devices) == 0
	if rec == nil {
		rec = &userRecord{
			userID:      client.UserID,
			userName:    client.Username,
			communityID: client.CommunityID,
			devices:     make(map[string]*Device),
		}
		pm.presence[client.UserID] = rec
	}
	if rec.userName == "" {
		rec.userName = client.Username
	}
	rec.devices[client.ID] = &Device{
		ConnectionID: client.ID,
		ConnectedAt:  now,
		LastSeenAt:   now,
	}
	pm.mu.Unlock()

	if firstDevice {
		pm.hub.BroadcastToRoom(CommunityRoom(client.CommunityID), NewMessage(MessageTypeUserOnline, PresencePayload{
			UserID:    client.UserID,
			UserName:  client.Username,
			Status:    StatusOnline,
			Timestamp: now.UnixMilli(),
		}), client)

		// Update database (non-blocking)
		go pm.updateDatabasePresence(client.UserID, true)
	}

	// Sync the full online list to the new connection
	client.Send(NewMessage(MessageTypePresenceSync, PresenceSyncPayload{
		Users:     pm.CommunitySnapshot(client.CommunityID),
		Timestamp: now.UnixMilli(),
	}))
}

// OnClientDisconnect is called when a client disconnects. The last device
// of a user announces them offline.
func (pm *PresenceManager) OnClientDisconnect(client *Client) {
	pm.mu.Lock()
	lastDevice := false
	if rec, ok := pm.presence[client.UserID]; ok {
		delete(rec.devices, client.ID)
		if len(rec.devices) == 0 {
			delete(pm.presence, client.UserID)
			lastDevice = true
		}
	}
	pm.mu.Unlock()

	if board := client.Board(); board != 0 {
		pm.broadcastBoardPresence(board)
	}

	if lastDevice {
		pm.hub.BroadcastToRoom(CommunityRoom(client.CommunityID), NewMessage(MessageTypeUserOffline, PresencePayload{
			UserID:    client.UserID,
			UserName:  client.Username,
			Status:    StatusOffline,
			Timestamp: time.Now().UnixMilli(),
		}), client)

		// Update database (non-blocking)
		go pm.updateDatabasePresence(client.UserID, false)
	}
}

// JoinBoard moves a connection into a board room, leaving the previous one
func (pm *PresenceManager) JoinBoard(client *Client, boardID int64) {
	prev := client.Board()
	if prev == boardID {
		pm.Touch(client, boardID)
		return
	}

	if prev != 0 {
		pm.hub.LeaveRoom(client, BoardRoom(prev))
	}
	pm.hub.JoinRoom(client, BoardRoom(boardID))
	client.setBoard(boardID)
	pm.Touch(client, boardID)

	// Viewers of both boards see the change
	if prev != 0 {
		pm.broadcastBoardPresence(prev)
	}
	pm.broadcastBoardPresence(boardID)
}

// LeaveBoard removes a connection from its current board room
func (pm *PresenceManager) LeaveBoard(client *Client) {
	prev := client.Board()
	if prev == 0 {
		return
	}

	pm.hub.LeaveRoom(client, BoardRoom(prev))
	client.setBoard(0)
	pm.Touch(client, 0)

	pm.broadcastBoardPresence(prev)
}

// relayTyping fans a typing signal out to the board room, stamped with the
// sender's identity. Signals for boards the sender is not viewing are dropped.
func (pm *PresenceManager) relayTyping(client *Client, msg *Message, outType string) {
	var payload TypingPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return
	}
	if payload.BoardID == 0 || payload.BoardID != client.Board() {
		return
	}

	pm.Touch(client, payload.BoardID)

	payload.UserID = client.UserID
	payload.UserName = client.Username
	payload.Timestamp = time.Now().UnixMilli()

	pm.hub.BroadcastToRoom(BoardRoom(payload.BoardID), NewMessage(outType, payload), client)
}

// Touch refreshes the activity clock on one device
func (pm *PresenceManager) Touch(client *Client, boardID int64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if rec, ok := pm.presence[client.UserID]; ok {
		if device, ok := rec.devices[client.ID]; ok {
			device.LastSeenAt = time.Now()
			device.BoardID = boardID
		}
	}
}

// broadcastBoardPresence tells a board room who is currently viewing it
func (pm *PresenceManager) broadcastBoardPresence(boardID int64) {
	room := BoardRoom(boardID)
	pm.hub.BroadcastToRoom(room, NewMessage(MessageTypeBoardPresence, BoardPresencePayload{
		BoardID:   boardID,
		UserIDs:   pm.hub.RoomUserIDs(room),
		Timestamp: time.Now().UnixMilli(),
	}), nil)
}

// BoardViewers returns the distinct user IDs currently viewing a board
func (pm *PresenceManager) BoardViewers(boardID int64) []string {
	return pm.hub.RoomUserIDs(BoardRoom(boardID))
}

// GetPresence returns a copy of one user's presence, or nil when offline
func (pm *PresenceManager) GetPresence(userID string) *UserPresence {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if rec, ok := pm.presence[userID]; ok {
		p := snapshotRecord(rec)
		return &p
	}
	return nil
}

// CommunitySnapshot returns the aggregated presence of everyone online in
// a community, sorted by user ID for stable output
func (pm *PresenceManager) CommunitySnapshot(communityID string) []UserPresence {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make([]UserPresence, 0)
	for _, rec := range pm.presence {
		if rec.communityID != communityID || len(rec.devices) == 0 {
			continue
		}
		result = append(result, snapshotRecord(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})
	return result
}

// OnlineCount returns the number of distinct users online in a community
func (pm *PresenceManager) OnlineCount(communityID string) int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	count := 0
	for _, rec := range pm.presence {
		if rec.communityID == communityID && len(rec.devices) > 0 {
			count++
		}
	}
	return count
}

// snapshotRecord copies a userRecord into an aggregated UserPresence.
// Caller must hold pm.mu.
func snapshotRecord(rec *userRecord) UserPresence {
	p := UserPresence{
		UserID:      rec.userID,
		UserName:    rec.userName,
		CommunityID: rec.communityID,
		Devices:     make([]Device, 0, len(rec.devices)),
	}
	for _, device := range rec.devices {
		p.Devices = append(p.Devices, *device)
		if p.ConnectedAt.IsZero() || device.ConnectedAt.Before(p.ConnectedAt) {
			p.ConnectedAt = device.ConnectedAt
		}
		if device.LastSeenAt.After(p.LastSeenAt) {
			p.LastSeenAt = device.LastSeenAt
		}
	}
	sort.Slice(p.Devices, func(i, j int) bool {
		return p.Devices[i].ConnectionID < p.Devices[j].ConnectionID
	})
	return p
}

// runTimeoutChecker periodically checks for timed-out devices
func (pm *PresenceManager) runTimeoutChecker() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.checkTimeouts()
		}
	}
}

// checkTimeouts drops users whose devices have all gone silent. Users the
// hub still holds connections for get their clocks refreshed instead.
func (pm *PresenceManager) checkTimeouts() {
	cutoff := time.Now().Add(-pm.timeoutDuration)

	pm.mu.Lock()
	expired := make([]*userRecord, 0)
	for userID, rec := range pm.presence {
		latest := time.Time{}
		for _, device := range rec.devices {
			if device.LastSeenAt.After(latest) {
				latest = device.LastSeenAt
			}
		}
		if !latest.Before(cutoff) {
			continue
		}

		if pm.hub.IsUserOnline(userID) {
			// Connections are alive but quiet, refresh their clocks
			for _, device := range rec.devices {
				device.LastSeenAt = time.Now()
			}
			continue
		}

		log.Printf("👤 Presence timeout for user %s (last seen: %v)", userID, latest)
		delete(pm.presence, userID)
		expired = append(expired, rec)
	}
	pm.mu.Unlock()

	for _, rec := range expired {
		pm.hub.BroadcastToRoom(CommunityRoom(rec.communityID), NewMessage(MessageTypeUserOffline, PresencePayload{
			UserID:    rec.userID,
			UserName:  rec.userName,
			Status:    StatusOffline,
			Timestamp: time.Now().UnixMilli(),
		}), nil)

		go pm.updateDatabasePresence(rec.userID, false)
	}
}

// updateDatabasePresence updates the user's online status in the database
func (pm *PresenceManager) updateDatabasePresence(userID string, isOnline bool) {
	if database.DB == nil {
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"is_online":      isOnline,
		"last_active_at": now,
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		log.Printf("Error updating user presence in database: %v", err)
	}
}
