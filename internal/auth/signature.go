package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// signatureWindow bounds how old (or future-dated) a handshake payload
// may be before it is rejected as a replay.
const signatureWindow = 5 * time.Minute

// SignSession computes the handshake signature the host is expected to
// send: hex HMAC-SHA256 over "userID:communityID:iat". Exported so seed
// tooling and tests can produce valid payloads.
func SignSession(secret []byte, userID, communityID string, iat int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s:%s:%d", userID, communityID, iat)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) verifySignature(req *SessionRequest) error {
	issued := time.Unix(req.IssuedAt, 0)
	age := time.Since(issued)
	if age > signatureWindow || age < -signatureWindow {
		return ErrStaleTimestamp
	}

	want := SignSession(s.sessionSecret, req.UserID, req.CommunityID, req.IssuedAt)
	if !hmac.Equal([]byte(want), []byte(req.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}
