package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	// Try to unmarshal as Unix milliseconds (integer)
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	// Fall back to RFC3339 string format
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON implements custom marshaling (always output as RFC3339)
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	// Client → server room control
	MessageTypeJoinBoard  = "join_board"
	MessageTypeLeaveBoard = "leave_board"
	MessageTypeTyping     = "typing"
	MessageTypeTypingStop = "typing_stop"

	// Presence broadcasts
	MessageTypePresenceSync      = "presence_sync"
	MessageTypeUserOnline        = "user_online"
	MessageTypeUserOffline       = "user_offline"
	MessageTypeBoardPresence     = "board_presence"
	MessageTypeUserTyping        = "user_typing"
	MessageTypeUserStoppedTyping = "user_stopped_typing"

	// Forum event fan-out (sent by handlers after writes commit)
	MessageTypePostCreated    = "post_created"
	MessageTypeCommentCreated = "comment_created"
	MessageTypeReactionUpdate = "reaction_update"
	MessageTypeBoardCreated   = "board_created"
)

// CommunityRoom is the room every client of a community joins at connect.
func CommunityRoom(communityID string) string {
	return "community:" + communityID
}

// BoardRoom is the room clients join while viewing a board.
func BoardRoom(boardID int64) string {
	return fmt.Sprintf("board:%d", boardID)
}

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique message identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewMessageWithID creates a new message with a specific ID
func NewMessageWithID(msgType string, id string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ID:        id,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ReplyTo:   original.ID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SystemPayload represents system event payloads
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// JoinBoardPayload asks to move this connection into a board room
type JoinBoardPayload struct {
	BoardID int64 `json:"board_id"`
}

// TypingPayload is sent by a client composing a post or comment, and
// echoed to the board room with the sender's identity filled in
type TypingPayload struct {
	BoardID   int64  `json:"board_id"`
	PostID    *int64 `json:"post_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// PresencePayload announces one user coming online or going offline
type PresencePayload struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	Status    string `json:"status"` // "online", "offline"
	Timestamp int64  `json:"timestamp"`
}

// PresenceSyncPayload carries the full online list, sent once on join
type PresenceSyncPayload struct {
	Users     []UserPresence `json:"users"`
	Timestamp int64          `json:"timestamp"`
}

// BoardPresencePayload lists who is currently viewing a board
type BoardPresencePayload struct {
	BoardID   int64    `json:"board_id"`
	UserIDs   []string `json:"user_ids"`
	Timestamp int64    `json:"timestamp"`
}

// PostCreatedPayload announces a new post to the community room
type PostCreatedPayload struct {
	PostID     int64  `json:"post_id"`
	BoardID    int64  `json:"board_id"`
	Title      string `json:"title"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
}

// CommentCreatedPayload announces a new comment to the board room
type CommentCreatedPayload struct {
	CommentID       int64  `json:"comment_id"`
	PostID          int64  `json:"post_id"`
	BoardID         int64  `json:"board_id"`
	ParentCommentID *int64 `json:"parent_comment_id,omitempty"`
	AuthorID        string `json:"author_id"`
	AuthorName      string `json:"author_name"`
}

// ReactionUpdatePayload carries fresh reaction counts to the board room
type ReactionUpdatePayload struct {
	TargetType  string `json:"target_type"` // "post" or "comment"
	TargetID    int64  `json:"target_id"`
	BoardID     int64  `json:"board_id"`
	Emoji       string `json:"emoji"`
	Count       int64  `json:"count"`
	UpvoteCount *int   `json:"upvote_count,omitempty"`
}

// BoardCreatedPayload announces a new board to the community room
type BoardCreatedPayload struct {
	BoardID int64  `json:"board_id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
}
