// Package leaderboard ranks community members by forum activity. The
// ranking is one SQL aggregate over live rows, cached in Redis so the
// sidebar widget does not hammer the database on every page load.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
)

// Score weights per activity type.
const (
	postWeight     = 10
	commentWeight  = 4
	reactionWeight = 1
)

// Row is one ranked member.
type Row struct {
	Rank              int    `json:"rank"`
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	ProfilePictureURL string `json:"profile_picture_url"`
	PostCount         int64  `json:"post_count"`
	CommentCount      int64  `json:"comment_count"`
	ReactionsReceived int64  `json:"reactions_received"`
	Score             int64  `json:"score"`
}

// Service computes and caches community leaderboards.
type Service struct {
	db    *gorm.DB
	redis *cache.RedisClient
}

// NewService wires the leaderboard against the shared database handle.
// A nil redis disables caching; every call recomputes.
func NewService(redis *cache.RedisClient) *Service {
	return &Service{db: database.DB, redis: redis}
}

// Get returns the full ranking for a community, from cache unless fresh
// is set or the cache is cold.
func (s *Service) Get(ctx context.Context, communityID string, fresh bool) ([]Row, error) {
	if !fresh && s.redis != nil {
		raw, err := s.redis.Get(ctx, cache.LeaderboardKey(communityID))
		if err == nil {
			var rows []Row
			if jsonErr := json.Unmarshal([]byte(raw), &rows); jsonErr == nil {
				return rows, nil
			}
		} else if !cache.IsNil(err) {
			logger.Warn("Leaderboard cache read failed, recomputing", zap.Error(err))
		}
	}
	return s.Compute(ctx, communityID)
}

// Compute runs the ranking aggregate and refreshes the cache.
func (s *Service) Compute(ctx context.Context, communityID string) ([]Row, error) {
	var rows []Row
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			u.id                                 AS user_id,
			u.name                               AS name,
			u.profile_picture_url                AS profile_picture_url,
			COALESCE(p.post_count, 0)            AS post_count,
			COALESCE(c.comment_count, 0)         AS comment_count,
			COALESCE(r.reactions_received, 0)    AS reactions_received,
			COALESCE(p.post_count, 0) * ? +
			COALESCE(c.comment_count, 0) * ? +
			COALESCE(r.reactions_received, 0) * ? AS score
		FROM user_communities uc
		JOIN users u ON u.id = uc.user_id AND u.deleted_at IS NULL
		LEFT JOIN (
			SELECT posts.author_user_id, COUNT(*) AS post_count
			FROM posts
			JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL
			WHERE boards.community_id = ? AND posts.deleted_at IS NULL
			GROUP BY posts.author_user_id
		) p ON p.author_user_id = u.id
		LEFT JOIN (
			SELECT comments.author_user_id, COUNT(*) AS comment_count
			FROM comments
			JOIN posts ON posts.id = comments.post_id AND posts.deleted_at IS NULL
			JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL
			WHERE boards.community_id = ? AND comments.deleted_at IS NULL
			GROUP BY comments.author_user_id
		) c ON c.author_user_id = u.id
		LEFT JOIN (
			SELECT rx.author_user_id, COUNT(*) AS reactions_received
			FROM (
				SELECT posts.author_user_id
				FROM reactions
				JOIN posts ON posts.id = reactions.post_id AND posts.deleted_at IS NULL
				JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL
				WHERE boards.community_id = ?
				UNION ALL
				SELECT comments.author_user_id
				FROM reactions
				JOIN comments ON comments.id = reactions.comment_id AND comments.deleted_at IS NULL
				JOIN posts ON posts.id = comments.post_id AND posts.deleted_at IS NULL
				JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL
				WHERE boards.community_id = ?
			) rx
			GROUP BY rx.author_user_id
		) r ON r.author_user_id = u.id
		WHERE uc.community_id = ?
		ORDER BY score DESC, u.name ASC`,
		postWeight, commentWeight, reactionWeight,
		communityID, communityID, communityID, communityID, communityID,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("compute leaderboard: %w", err)
	}

	for i := range rows {
		rows[i].Rank = i + 1
	}

	if s.redis != nil {
		encoded, err := json.Marshal(rows)
		if err == nil {
			if err := s.redis.SetEx(ctx, cache.LeaderboardKey(communityID), string(encoded), cache.LeaderboardTTL); err != nil {
				logger.Warn("Leaderboard cache write failed",
					zap.String("community_id", communityID),
					zap.Error(err))
			}
		}
	}

	return rows, nil
}

// WarmActive recomputes the leaderboard for every community with forum
// activity inside the window. Used by the cron warmer so interactive
// requests mostly hit a hot cache.
func (s *Service) WarmActive(ctx context.Context, window time.Duration) (int, error) {
	var communityIDs []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT boards.community_id
		FROM posts
		JOIN boards ON boards.id = posts.board_id AND boards.deleted_at IS NULL
		WHERE posts.created_at > ? AND posts.deleted_at IS NULL`,
		time.Now().Add(-window),
	).Scan(&communityIDs).Error
	if err != nil {
		return 0, fmt.Errorf("find active communities: %w", err)
	}

	warmed := 0
	for _, id := range communityIDs {
		if _, err := s.Compute(ctx, id); err != nil {
			logger.Warn("Leaderboard warm failed",
				zap.String("community_id", id),
				zap.Error(err))
			continue
		}
		warmed++
	}
	return warmed, nil
}
