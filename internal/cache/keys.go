package cache

import (
	"fmt"
	"time"
)

// TTLs for the forum's cached values. Share tokens survive long enough
// for a link pasted in chat to still resolve weeks later.
const (
	ConnectCodeTTL = 10 * time.Minute
	ShareTokenTTL  = 30 * 24 * time.Hour
	LeaderboardTTL = 5 * time.Minute
)

// ConnectCodeKey maps a Telegram /connect code to the community that
// issued it.
func ConnectCodeKey(code string) string {
	return fmt.Sprintf("telegram:connect:%s", code)
}

// ShareTokenKey maps a share-link token to its target post.
func ShareTokenKey(token string) string {
	return fmt.Sprintf("share:token:%s", token)
}

// LeaderboardKey caches the computed leaderboard for a community.
func LeaderboardKey(communityID string) string {
	return fmt.Sprintf("leaderboard:%s", communityID)
}
