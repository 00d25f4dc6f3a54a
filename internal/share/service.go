// Package share mints and resolves the tokens behind public share URLs.
// A share URL lands on this server, drops a cookie naming the shared
// content and bounces the visitor into the host platform iframe where
// the forum actually renders.
package share

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/flotob/curia-sub002/internal/cache"
)

const (
	tokenLength   = 12
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// ErrTokenNotFound means the token never existed or its TTL ran out.
var ErrTokenNotFound = errors.New("share token not found or expired")

// Payload is what a share token resolves back into.
type Payload struct {
	CommunityShortID string `json:"community_short_id"`
	PluginID         string `json:"plugin_id"`
	BoardID          int64  `json:"board_id"`
	PostID           int64  `json:"post_id"`
}

// Service stores share tokens in Redis and renders the two URL shapes
// involved: our own /c/... share URL and the host platform plugin URL
// it redirects to.
type Service struct {
	redis      *cache.RedisClient
	publicBase string
	hostBase   string
}

// NewService creates a share service. publicBaseURL is this server's
// origin, hostBaseURL the Common Ground origin.
func NewService(redis *cache.RedisClient, publicBaseURL, hostBaseURL string) *Service {
	return &Service{
		redis:      redis,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
		hostBase:   strings.TrimRight(hostBaseURL, "/"),
	}
}

// Mint stores a fresh token for the given content and returns it along
// with the public share URL. Tokens are random, so sharing the same post
// twice yields two working URLs.
func (s *Service) Mint(ctx context.Context, p Payload) (string, string, error) {
	if p.CommunityShortID == "" || p.PluginID == "" {
		return "", "", fmt.Errorf("community short id and plugin id are required for share URLs")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode share payload: %w", err)
	}

	token, err := randomToken(tokenLength)
	if err != nil {
		return "", "", err
	}

	if err := s.redis.SetEx(ctx, cache.ShareTokenKey(token), string(data), cache.ShareTokenTTL); err != nil {
		return "", "", fmt.Errorf("failed to store share token: %w", err)
	}

	return token, s.PublicURL(p.CommunityShortID, p.PluginID, token), nil
}

// Resolve looks a token up. Returns ErrTokenNotFound for unknown or
// expired tokens.
func (s *Service) Resolve(ctx context.Context, token string) (*Payload, error) {
	raw, err := s.redis.Get(ctx, cache.ShareTokenKey(token))
	if err != nil {
		if cache.IsNil(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to load share token: %w", err)
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("corrupt share token payload: %w", err)
	}
	return &p, nil
}

// PublicURL is the share URL served by this server.
func (s *Service) PublicURL(shortID, pluginID, token string) string {
	return fmt.Sprintf("%s/c/%s/%s/%s",
		s.publicBase, url.PathEscape(shortID), url.PathEscape(pluginID), token)
}

// HostPluginURL is the host platform page a resolved share URL redirects
// to. Theme query params are appended by the redirect handler, not here.
func (s *Service) HostPluginURL(shortID, pluginID string) string {
	return fmt.Sprintf("%s/c/%s/plugin/%s",
		s.hostBase, url.PathEscape(shortID), url.PathEscape(pluginID))
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}
