// Package websocket provides WebSocket infrastructure for real-time communication.
// Uses github.com/coder/websocket - the modern, context-aware WebSocket library for Go.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flotob/curia-sub002/internal/middleware"
)

// Hub maintains the set of active clients and the rooms they belong to.
// Every client sits in its community room; joining a board adds a second
// room that follows the client around as it navigates.
type Hub struct {
	// Registered clients by user ID for targeted messaging
	clients map[string]map[*Client]struct{}

	// All clients for broadcasting
	allClients map[*Client]struct{}

	// Room membership by room name (community:<id>, board:<id>)
	rooms map[string]map[*Client]struct{}

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast messages to all clients
	broadcast chan *Message

	// Broadcast messages to one room
	roomcast chan *RoomMessage

	// Send message to specific user
	unicast chan *UnicastMessage

	// Mutex for client and room map access
	mu sync.RWMutex

	// Metrics
	metrics *Metrics

	// Shutdown handling
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Message handlers
	handlers map[string]MessageHandler

	// Rate limiter config
	rateLimitConfig RateLimitConfig
}

// Metrics tracks WebSocket statistics
type Metrics struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	// MaxMessagesPerSecond per client
	MaxMessagesPerSecond int
	// BurstSize allows short bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig allows bursts of 20 messages refilled at 2/s
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 2,
		BurstSize:            20,
	}
}

// UnicastMessage is a message targeted at a specific user
type UnicastMessage struct {
	UserID  string
	Message *Message
}

// RoomMessage is a message targeted at one room, optionally excluding
// the client that triggered it
type RoomMessage struct {
	Room    string
	Message *Message
	Exclude *Client
}

// MessageHandler processes incoming messages of a specific type
type MessageHandler func(client *Client, message *Message) error

// NewHub creates a new Hub instance
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		allClients:      make(map[*Client]struct{}),
		rooms:           make(map[string]map[*Client]struct{}),
		register:        make(chan *Client, 256),
		unregister:      make(chan *Client, 256),
		broadcast:       make(chan *Message, 256),
		roomcast:        make(chan *RoomMessage, 256),
		unicast:         make(chan *UnicastMessage, 256),
		metrics:         &Metrics{},
		ctx:             ctx,
		cancel:          cancel,
		handlers:        make(map[string]MessageHandler),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// RegisterHandler registers a handler for a specific message type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
	log.Printf("📨 Registered handler for message type: %s", msgType)
}

// GetHandler returns the handler for a message type
func (h *Hub) GetHandler(msgType string) (MessageHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	log.Println("🔌 WebSocket hub starting...")

	for {
		select {
		case <-h.ctx.Done():
			log.Println("🔌 WebSocket hub shutting down...")
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case rm := <-h.roomcast:
			h.broadcastToRoom(rm)

		case unicast := <-h.unicast:
			h.sendToUser(unicast.UserID, unicast.Message)
		}
	}
}

// registerClient adds a client to the hub and its community room
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Add to user-specific map
	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	// Add to all clients
	h.allClients[client] = struct{}{}

	// Every client lives in its community room
	if client.CommunityID != "" {
		h.joinRoomLocked(client, CommunityRoom(client.CommunityID))
	}

	// Update metrics
	h.metrics.TotalConnections.Add(1)
	h.metrics.ActiveConnections.Add(1)
	middleware.SetWebsocketConnections(h.metrics.ActiveConnections.Load())

	log.Printf("✅ Client connected: user=%s community=%s, active=%d",
		client.UserID, client.CommunityID, h.metrics.ActiveConnections.Load())
}

// unregisterClient removes a client from the hub and all its rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; ok {
		delete(h.allClients, client)

		// Remove from user-specific map
		if clients, ok := h.clients[client.UserID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, client.UserID)
			}
		}

		// Remove from every room it joined
		for room := range client.rooms {
			h.leaveRoomLocked(client, room)
		}

		// Close the client's send channel
		close(client.send)

		// Update metrics
		h.metrics.ActiveConnections.Add(-1)
		middleware.SetWebsocketConnections(h.metrics.ActiveConnections.Load())

		log.Printf("❌ Client disconnected: user=%s, active=%d", client.UserID, h.metrics.ActiveConnections.Load())
	}
}

// joinRoomLocked adds a client to a room. Caller must hold h.mu.
func (h *Hub) joinRoomLocked(client *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
}

// leaveRoomLocked removes a client from a room, dropping the room once
// it empties. Caller must hold h.mu.
func (h *Hub) leaveRoomLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// JoinRoom adds a client to a room
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinRoomLocked(client, room)
}

// LeaveRoom removes a client from a room
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(client, room)
}

// RoomUserIDs returns the distinct user IDs present in a room
func (h *Hub) RoomUserIDs(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	users := make([]string, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		if _, ok := seen[client.UserID]; ok {
			continue
		}
		seen[client.UserID] = struct{}{}
		users = append(users, client.UserID)
	}
	return users
}

// RoomSize returns the number of connections in a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// broadcastMessage sends a message to all connected clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling broadcast message: %v", err)
		return
	}

	for client := range h.allClients {
		h.deliverLocked(client, data)
	}
}

// broadcastToRoom sends a message to every connection in one room
func (h *Hub) broadcastToRoom(rm *RoomMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(rm.Message)
	if err != nil {
		log.Printf("Error marshaling room message: %v", err)
		return
	}

	for client := range h.rooms[rm.Room] {
		if client == rm.Exclude {
			continue
		}
		h.deliverLocked(client, data)
	}
}

// sendToUser sends a message to all connections for a specific user
func (h *Hub) sendToUser(userID string, message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[userID]
	if !ok || len(clients) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling unicast message: %v", err)
		return
	}

	for client := range clients {
		h.deliverLocked(client, data)
	}
}

// deliverLocked queues raw bytes on one client, marking the connection
// for removal when its send buffer is full. Caller must hold h.mu.
func (h *Hub) deliverLocked(client *Client, data []byte) {
	select {
	case client.send <- data:
		h.metrics.MessagesSent.Add(1)
		middleware.RecordWebsocketMessage("outbound")
	default:
		// Client's buffer is full, mark for removal
		h.metrics.ConnectionsDropped.Add(1)
		go func(c *Client) {
			h.unregister <- c
		}(client)
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.ctx.Done():
	}
}

// BroadcastToRoom sends a message to one room, excluding at most one client
func (h *Hub) BroadcastToRoom(room string, message *Message, exclude *Client) {
	select {
	case h.roomcast <- &RoomMessage{Room: room, Message: message, Exclude: exclude}:
	case <-h.ctx.Done():
	}
}

// SendToUser sends a message to a specific user (all their connections)
func (h *Hub) SendToUser(userID string, message *Message) {
	select {
	case h.unicast <- &UnicastMessage{UserID: userID, Message: message}:
	case <-h.ctx.Done():
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// IsUserOnline checks if a user has any active connections
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.clients[userID]
	return ok && len(clients) > 0
}

// GetUserConnectionCount returns the number of connections for a user
func (h *Hub) GetUserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[userID]; ok {
		return len(clients)
	}
	return 0
}

// GetOnlineUsers returns a list of all online user IDs
func (h *Hub) GetOnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

// GetMetrics returns current WebSocket metrics
func (h *Hub) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   h.metrics.TotalConnections.Load(),
		ActiveConnections:  h.metrics.ActiveConnections.Load(),
		MessagesReceived:   h.metrics.MessagesReceived.Load(),
		MessagesSent:       h.metrics.MessagesSent.Load(),
		Errors:             h.metrics.Errors.Load(),
		ConnectionsDropped: h.metrics.ConnectionsDropped.Load(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// String implements Stringer for MetricsSnapshot
func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		m.ActiveConnections, m.TotalConnections,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped,
	)
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown(ctx context.Context) error {
	log.Println("🔌 Initiating WebSocket hub shutdown...")

	// Cancel the hub's context to stop the main loop
	h.cancel()

	// Wait for shutdown to complete or context to expire
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("🔌 WebSocket hub shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// shutdown closes all client connections
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Send shutdown message to all clients
	shutdownMsg := &Message{
		Type:      MessageTypeSystem,
		Payload:   map[string]interface{}{"event": "server_shutdown"},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
	data, _ := json.Marshal(shutdownMsg)

	for client := range h.allClients {
		// Try to send shutdown message
		select {
		case client.send <- data:
		default:
		}
		// Close the send channel
		close(client.send)
	}

	// Clear all maps
	h.clients = make(map[string]map[*Client]struct{})
	h.allClients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})

	log.Printf("🔌 Closed %d connections during shutdown", h.metrics.ActiveConnections.Load())
	h.metrics.ActiveConnections.Store(0)
	middleware.SetWebsocketConnections(0)
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
