package telegram

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flotob/curia-sub002/internal/cache"
)

const connectCodeLength = 8

// Alphabet skips 0/O and 1/I so codes survive being read aloud.
const connectCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ErrCodeNotFound means a /connect code was wrong, expired or already used.
var ErrCodeNotFound = errors.New("connect code not found or expired")

// ConnectPayload is what a connect code stores in Redis.
type ConnectPayload struct {
	CommunityID    string `json:"community_id"`
	IssuedByUserID string `json:"issued_by_user_id"`
}

// MintConnectCode issues a single-use code that binds a Telegram group to
// the community. Codes live in Redis for ten minutes.
func MintConnectCode(ctx context.Context, redis *cache.RedisClient, communityID, issuedByUserID string) (string, error) {
	payload, err := json.Marshal(ConnectPayload{
		CommunityID:    communityID,
		IssuedByUserID: issuedByUserID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode connect payload: %w", err)
	}

	// SetNX so a rare collision with a live code mints a fresh one instead
	// of silently rebinding it.
	for attempt := 0; attempt < 3; attempt++ {
		code, err := randomCode(connectCodeLength)
		if err != nil {
			return "", err
		}

		ok, err := redis.SetNX(ctx, cache.ConnectCodeKey(code), string(payload), cache.ConnectCodeTTL)
		if err != nil {
			return "", fmt.Errorf("failed to store connect code: %w", err)
		}
		if ok {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to mint a unique connect code")
}

// claimConnectCode atomically consumes a code. GetDel guarantees a code
// connects at most one group even when two chats race on it.
func (b *Bot) claimConnectCode(ctx context.Context, code string) (*ConnectPayload, error) {
	raw, err := b.redis.GetDel(ctx, cache.ConnectCodeKey(code))
	if err != nil {
		if cache.IsNil(err) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to claim connect code: %w", err)
	}

	var p ConnectPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("corrupt connect code payload: %w", err)
	}
	return &p, nil
}

func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate connect code: %w", err)
	}
	for i, b := range buf {
		buf[i] = connectCodeAlphabet[int(b)%len(connectCodeAlphabet)]
	}
	return string(buf), nil
}
