package util

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is an opaque pagination position over (created_at, id) ordered
// descending. Encoded as base64("RFC3339Nano|id") so clients treat it as a
// token and never build one by hand.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// EncodeCursor builds the opaque token for the last row of a page.
func EncodeCursor(createdAt time.Time, id int64) string {
	raw := fmt.Sprintf("%s|%d", createdAt.UTC().Format(time.RFC3339Nano), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a client-supplied cursor token. An empty token means
// "first page" and returns (nil, nil).
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor")
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed cursor")
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("malformed cursor")
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor")
	}

	return &Cursor{CreatedAt: createdAt, ID: id}, nil
}
