package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readMessage pulls from a client's send buffer until a message of the
// wanted type arrives, skipping interleaved broadcasts
func readMessage(t *testing.T, client *Client, wantType string) *Message {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-client.send:
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == wantType {
				return &msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", wantType)
			return nil
		}
	}
}

// assertNoBuffered drains a client's send buffer and fails if a message
// of the given type is found
func assertNoBuffered(t *testing.T, client *Client, badType string) {
	t.Helper()

	for {
		select {
		case data := <-client.send:
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))
			assert.NotEqual(t, badType, msg.Type)
		default:
			return
		}
	}
}

func shutdownHub(t *testing.T, hub *Hub) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, hub.Shutdown(ctx))
}

func TestPresenceOnlineOfflineBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer shutdownHub(t, hub)

	pm := NewPresenceManager(hub, DefaultPresenceConfig())

	ada := NewClient(hub, nil, "u-ada", "Ada", "comm-1")
	hub.registerClient(ada)
	pm.OnClientConnect(ada)

	// The first connection gets a snapshot containing itself
	sync := readMessage(t, ada, MessageTypePresenceSync)
	var syncPayload PresenceSyncPayload
	require.NoError(t, sync.ParsePayload(&syncPayload))
	require.Len(t, syncPayload.Users, 1)
	assert.Equal(t, "u-ada", syncPayload.Users[0].UserID)
	assert.Equal(t, "Ada", syncPayload.Users[0].UserName)
	require.Len(t, syncPayload.Users[0].Devices, 1)
	assert.Equal(t, ada.ID, syncPayload.Users[0].Devices[0].ConnectionID)

	bob := NewClient(hub, nil, "u-bob", "Bob", "comm-1")
	hub.registerClient(bob)
	pm.OnClientConnect(bob)

	// Ada sees Bob come online
	online := readMessage(t, ada, MessageTypeUserOnline)
	var presence PresencePayload
	require.NoError(t, online.ParsePayload(&presence))
	assert.Equal(t, "u-bob", presence.UserID)
	assert.Equal(t, "Bob", presence.UserName)
	assert.Equal(t, StatusOnline, presence.Status)

	// Bob's snapshot lists both users
	sync = readMessage(t, bob, MessageTypePresenceSync)
	require.NoError(t, sync.ParsePayload(&syncPayload))
	assert.Len(t, syncPayload.Users, 2)

	// Bob disconnects, Ada sees him go offline
	pm.OnClientDisconnect(bob)
	offline := readMessage(t, ada, MessageTypeUserOffline)
	require.NoError(t, offline.ParsePayload(&presence))
	assert.Equal(t, "u-bob", presence.UserID)
	assert.Equal(t, StatusOffline, presence.Status)
	assert.Nil(t, pm.GetPresence("u-bob"))
}

func TestPresenceMultiDeviceCountsOnce(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer shutdownHub(t, hub)

	pm := NewPresenceManager(hub, DefaultPresenceConfig())

	observer := NewClient(hub, nil, "u-observer", "Observer", "comm-1")
	hub.registerClient(observer)
	pm.OnClientConnect(observer)

	desktop := NewClient(hub, nil, "u-ada", "Ada", "comm-1")
	phone := NewClient(hub, nil, "u-ada", "Ada", "comm-1")

	hub.registerClient(desktop)
	pm.OnClientConnect(desktop)
	readMessage(t, observer, MessageTypeUserOnline)

	// Second device: no second online announcement
	hub.registerClient(phone)
	pm.OnClientConnect(phone)

	p := pm.GetPresence("u-ada")
	require.NotNil(t, p)
	assert.Len(t, p.Devices, 2)
	assert.Equal(t, 2, pm.OnlineCount("comm-1"))

	// First device leaving keeps the user online
	pm.OnClientDisconnect(desktop)
	p = pm.GetPresence("u-ada")
	require.NotNil(t, p)
	assert.Len(t, p.Devices, 1)

	// Last device leaving announces offline
	pm.OnClientDisconnect(phone)
	readMessage(t, observer, MessageTypeUserOffline)
	assert.Nil(t, pm.GetPresence("u-ada"))

	// Exactly one online and one offline reached the observer
	assertNoBuffered(t, observer, MessageTypeUserOnline)
}

func TestJoinBoardMovesRooms(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer shutdownHub(t, hub)

	pm := NewPresenceManager(hub, DefaultPresenceConfig())

	ada := NewClient(hub, nil, "u-ada", "Ada", "comm-1")
	bob := NewClient(hub, nil, "u-bob", "Bob", "comm-1")
	hub.registerClient(ada)
	hub.registerClient(bob)

	pm.JoinBoard(ada, 7)
	assert.Equal(t, int64(7), ada.Board())

	msg := readMessage(t, ada, MessageTypeBoardPresence)
	var bp BoardPresencePayload
	require.NoError(t, msg.ParsePayload(&bp))
	assert.Equal(t, int64(7), bp.BoardID)
	assert.Equal(t, []string{"u-ada"}, bp.UserIDs)

	// Bob joins the same board, Ada sees the roster grow
	pm.JoinBoard(bob, 7)
	msg = readMessage(t, ada, MessageTypeBoardPresence)
	require.NoError(t, msg.ParsePayload(&bp))
	assert.ElementsMatch(t, []string{"u-ada", "u-bob"}, bp.UserIDs)

	// Ada moves to another board, membership follows
	pm.JoinBoard(ada, 9)
	assert.Equal(t, int64(9), ada.Board())
	assert.Equal(t, []string{"u-bob"}, hub.RoomUserIDs(BoardRoom(7)))
	assert.Equal(t, []string{"u-ada"}, hub.RoomUserIDs(BoardRoom(9)))

	// Bob sees Ada leave board 7 (second roster update after his own join)
	readMessage(t, bob, MessageTypeBoardPresence)
	msg = readMessage(t, bob, MessageTypeBoardPresence)
	require.NoError(t, msg.ParsePayload(&bp))
	assert.Equal(t, int64(7), bp.BoardID)
	assert.Equal(t, []string{"u-bob"}, bp.UserIDs)

	// Ada's next roster update is for her new board
	msg = readMessage(t, ada, MessageTypeBoardPresence)
	require.NoError(t, msg.ParsePayload(&bp))
	assert.Equal(t, int64(9), bp.BoardID)

	pm.LeaveBoard(bob)
	assert.Equal(t, int64(0), bob.Board())
	assert.Equal(t, 0, hub.RoomSize(BoardRoom(7)))
}

func TestTypingRelay(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer shutdownHub(t, hub)

	pm := NewPresenceManager(hub, DefaultPresenceConfig())
	pm.registerHandlers()

	ada := NewClient(hub, nil, "u-ada", "Ada", "comm-1")
	bob := NewClient(hub, nil, "u-bob", "Bob", "comm-1")
	hub.registerClient(ada)
	hub.registerClient(bob)
	pm.JoinBoard(ada, 5)
	pm.JoinBoard(bob, 5)

	typingHandler, ok := hub.GetHandler(MessageTypeTyping)
	require.True(t, ok)
	stopHandler, ok := hub.GetHandler(MessageTypeTypingStop)
	require.True(t, ok)

	postID := int64(99)
	require.NoError(t, typingHandler(ada, NewMessage(MessageTypeTyping, TypingPayload{BoardID: 5, PostID: &postID})))

	msg := readMessage(t, bob, MessageTypeUserTyping)
	var typing TypingPayload
	require.NoError(t, msg.ParsePayload(&typing))
	assert.Equal(t, int64(5), typing.BoardID)
	assert.Equal(t, "u-ada", typing.UserID)
	assert.Equal(t, "Ada", typing.UserName)
	require.NotNil(t, typing.PostID)
	assert.Equal(t, int64(99), *typing.PostID)
	assert.Greater(t, typing.Timestamp, int64(0))

	// The sender does not hear its own typing echo
	assertNoBuffered(t, ada, MessageTypeUserTyping)

	// Typing signals for a board the sender is not viewing are dropped
	require.NoError(t, typingHandler(ada, NewMessage(MessageTypeTyping, TypingPayload{BoardID: 8})))
	require.NoError(t, stopHandler(ada, NewMessage(MessageTypeTypingStop, TypingPayload{BoardID: 5})))

	msg = readMessage(t, bob, MessageTypeUserStoppedTyping)
	require.NoError(t, msg.ParsePayload(&typing))
	assert.Equal(t, "u-ada", typing.UserID)
	assertNoBuffered(t, bob, MessageTypeUserTyping)
}

func TestJoinBoardHandlerValidatesPayload(t *testing.T) {
	hub := NewHub()
	pm := NewPresenceManager(hub, DefaultPresenceConfig())
	pm.registerHandlers()

	ada := NewClient(hub, nil, "u-ada", "Ada", "comm-1")
	hub.registerClient(ada)

	joinHandler, ok := hub.GetHandler(MessageTypeJoinBoard)
	require.True(t, ok)

	require.NoError(t, joinHandler(ada, NewMessage(MessageTypeJoinBoard, JoinBoardPayload{})))
	assert.Equal(t, int64(0), ada.Board())

	errMsg := readMessage(t, ada, MessageTypeError)
	var errPayload ErrorPayload
	require.NoError(t, errMsg.ParsePayload(&errPayload))
	assert.Equal(t, "invalid_board", errPayload.Code)

	require.NoError(t, joinHandler(ada, NewMessage(MessageTypeJoinBoard, JoinBoardPayload{BoardID: 12})))
	assert.Equal(t, int64(12), ada.Board())
}

func TestCommunitySnapshotAggregation(t *testing.T) {
	hub := NewHub()
	pm := NewPresenceManager(hub, DefaultPresenceConfig())

	desktop := NewClient(hub, nil, "u-ada", "Ada", "comm-1")
	phone := NewClient(hub, nil, "u-ada", "Ada", "comm-1")
	bob := NewClient(hub, nil, "u-bob", "Bob", "comm-1")
	carl := NewClient(hub, nil, "u-carl", "Carl", "comm-2")

	for _, client := range []*Client{desktop, phone, bob, carl} {
		hub.registerClient(client)
		pm.OnClientConnect(client)
	}
	pm.JoinBoard(desktop, 7)

	snapshot := pm.CommunitySnapshot("comm-1")
	require.Len(t, snapshot, 2)

	// Sorted by user ID, devices aggregated
	assert.Equal(t, "u-ada", snapshot[0].UserID)
	assert.Equal(t, "u-bob", snapshot[1].UserID)
	assert.Len(t, snapshot[0].Devices, 2)
	assert.False(t, snapshot[0].ConnectedAt.IsZero())
	assert.False(t, snapshot[0].LastSeenAt.IsZero())

	// The desktop device carries its current board
	boards := []int64{}
	for _, device := range snapshot[0].Devices {
		boards = append(boards, device.BoardID)
	}
	assert.ElementsMatch(t, []int64{7, 0}, boards)

	assert.Equal(t, 2, pm.OnlineCount("comm-1"))
	assert.Equal(t, 1, pm.OnlineCount("comm-2"))
	assert.Nil(t, pm.GetPresence("u-nobody"))
	assert.Equal(t, []string{"u-ada"}, pm.BoardViewers(7))
}

func TestCheckTimeoutsDropsSilentUsers(t *testing.T) {
	hub := NewHub()
	pm := NewPresenceManager(hub, PresenceConfig{TimeoutDuration: 50 * time.Millisecond})

	// Stale user: tracked by presence but no live hub connection
	stale := NewClient(hub, nil, "u-stale", "Stale", "comm-1")
	pm.OnClientConnect(stale)

	// Live user: hub still holds a connection, the clock refreshes instead
	live := NewClient(hub, nil, "u-live", "Live", "comm-1")
	hub.registerClient(live)
	pm.OnClientConnect(live)

	time.Sleep(80 * time.Millisecond)
	pm.checkTimeouts()

	assert.Nil(t, pm.GetPresence("u-stale"))
	require.NotNil(t, pm.GetPresence("u-live"))
	assert.Equal(t, 1, pm.OnlineCount("comm-1"))
}
