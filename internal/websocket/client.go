package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	// Send buffer size
	sendBufferSize = 256
)

// Client represents a single WebSocket connection. One user can hold
// several clients at once (desktop and phone), each with its own ID.
type Client struct {
	// The websocket connection
	conn *websocket.Conn

	// Hub reference
	hub *Hub

	// Connection identity
	ID          string
	UserID      string
	Username    string
	CommunityID string

	// Buffered channel of outbound messages
	send chan []byte

	// Room membership, maintained by the hub. Guarded by hub.mu.
	rooms map[string]struct{}

	// Board this connection is currently viewing (0 = none)
	boardID int64

	// Connection metadata
	ConnectedAt time.Time
	LastPingAt  time.Time
	RemoteAddr  string
	UserAgent   string

	// Rate limiting
	rateLimiter *middleware.TokenBucket

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex for connection state
	mu sync.RWMutex

	// Closed flag
	closed bool
}

// NewClient creates a new Client. Message throttling shares the token
// bucket used by the HTTP rate limiter.
func NewClient(hub *Hub, conn *websocket.Conn, userID, username, communityID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		hub:         hub,
		conn:        conn,
		ID:          uuid.New().String(),
		UserID:      userID,
		Username:    username,
		CommunityID: communityID,
		send:        make(chan []byte, sendBufferSize),
		rooms:       make(map[string]struct{}),
		ConnectedAt: time.Now(),
		rateLimiter: middleware.NewTokenBucket(float64(config.BurstSize), float64(config.MaxMessagesPerSecond)),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Board returns the board this connection is currently viewing
func (c *Client) Board() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.boardID
}

// setBoard records the board this connection is viewing
func (c *Client) setBoard(boardID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boardID = boardID
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	// Set read limit
	c.conn.SetReadLimit(maxMessageSize)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// Read message with timeout context
		readCtx, readCancel := context.WithTimeout(c.ctx, pongWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				logger.Log.Info("Client disconnected normally", zap.String("user", c.UserID))
			} else if c.ctx.Err() == nil {
				// Only log errors if we're not shutting down
				logger.Log.Error("Read error for client", zap.String("user", c.UserID), zap.Error(err))
				c.hub.metrics.Errors.Add(1)
			}
			return
		}

		// Rate limiting
		if !c.rateLimiter.Allow() {
			c.SendError("rate_limited", "Too many messages, please slow down")
			c.hub.metrics.Errors.Add(1)
			continue
		}

		// Update metrics
		c.hub.metrics.MessagesReceived.Add(1)
		middleware.RecordWebsocketMessage("inbound")

		// Parse the message
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Log.Warn("WebSocket JSON parse error",
				zap.String("user", c.UserID),
				zap.Error(err))
			c.SendError("invalid_json", "Failed to parse message")
			continue
		}

		// Handle the message
		c.handleMessage(&message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			// Send close message
			c.conn.Close(websocket.StatusGoingAway, "server shutdown")
			return

		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				c.conn.Close(websocket.StatusNormalClosure, "closing")
				return
			}

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()

			if err != nil {
				logger.Log.Error("Write error for client", zap.String("user", c.UserID), zap.Error(err))
				c.hub.metrics.Errors.Add(1)
				return
			}

		case <-ticker.C:
			// Send ping
			c.mu.Lock()
			c.LastPingAt = time.Now()
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Log.Warn("Ping failed for client", zap.String("user", c.UserID), zap.Error(err))
				return
			}
		}
	}
}

// handleMessage routes incoming messages to appropriate handlers
func (c *Client) handleMessage(message *Message) {
	// Update timestamp if not set
	if message.Timestamp.IsZero() {
		message.Timestamp = FlexibleTime{Time: time.Now().UTC()}
	}

	// Handle built-in message types
	switch message.Type {
	case MessageTypePing, "heartbeat": // "heartbeat" is an alias for ping
		c.handlePing(message)
		return
	}

	// Check for registered handler
	if handler, ok := c.hub.GetHandler(message.Type); ok {
		if err := handler(c, message); err != nil {
			logger.Log.Error("Handler error",
				zap.String("type", message.Type),
				zap.Error(err))
			c.SendError("handler_error", fmt.Sprintf("Failed to process %s", message.Type))
		}
		return
	}

	// Unknown message type
	logger.Log.Warn("Unknown message type",
		zap.String("user", c.UserID),
		zap.String("type", message.Type))
	c.SendError("unknown_type", fmt.Sprintf("Unknown message type: %s", message.Type))
}

// handlePing responds to ping messages with pong
func (c *Client) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	latency := serverTime - ping.ClientTime

	pong := NewMessage(MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    latency,
	})

	if message.ID != "" {
		pong.ReplyTo = message.ID
	}

	// Best-effort pong response - connection may be closing
	_ = c.Send(pong)
}

// Send sends a message to this client
func (c *Client) Send(message *Message) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("client connection closed")
	}
	c.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("client shutting down")
	default:
		return fmt.Errorf("send buffer full")
	}
}

// SendJSON sends a typed message using wsjson
func (c *Client) SendJSON(ctx context.Context, v interface{}) error {
	return wsjson.Write(ctx, c.conn, v)
}

// SendError sends an error message to the client
func (c *Client) SendError(code, message string) {
	c.Send(NewErrorMessage(code, message))
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	// Cancel context
	c.cancel()

	// Close the WebSocket connection
	if c.conn != nil {
		c.conn.Close(websocket.StatusNormalClosure, "closing")
	}
}

// IsClosed returns whether the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// GetInfo returns client information
func (c *Client) GetInfo() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientInfo{
		ID:          c.ID,
		UserID:      c.UserID,
		Username:    c.Username,
		CommunityID: c.CommunityID,
		BoardID:     c.boardID,
		ConnectedAt: c.ConnectedAt,
		LastPingAt:  c.LastPingAt,
		RemoteAddr:  c.RemoteAddr,
		UserAgent:   c.UserAgent,
	}
}

// ClientInfo represents public client information
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	CommunityID string    `json:"community_id"`
	BoardID     int64     `json:"board_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPingAt  time.Time `json:"last_ping_at"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent"`
}
