package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/telemetry"
	"github.com/flotob/curia-sub002/internal/util"
	"github.com/gin-gonic/gin"
)

const maxSearchResults = 50

// SearchPosts runs a full-text search over post titles and content in
// the caller's community. Gated boards the caller cannot see are
// filtered out before ranking.
// GET /api/search/posts?q=
func (h *Handlers) SearchPosts(c *gin.Context) {
	communityID, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return
	}

	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 2 {
		util.RespondValidationError(c, "q", "search query must be at least 2 characters")
		return
	}

	limit := util.ParseInt(c.Query("limit"), 20)
	if limit < 1 || limit > maxSearchResults {
		limit = 20
	}

	boardIDs, ok := visibleBoardIDsForRequest(c, communityID)
	if !ok {
		return
	}

	_, span := telemetry.GetBusinessEvents().TraceSearch(c.Request.Context(), telemetry.SearchEventAttrs{
		QueryLength: int64(len(q)),
		Scope:       "posts",
	})
	defer span.End()

	started := time.Now()
	var posts []models.Post
	searchErr := error(nil)
	if len(boardIDs) > 0 {
		searchErr = database.DB.
			Preload("Author").
			Select("posts.*, ts_rank(to_tsvector('english', title || ' ' || content), plainto_tsquery('english', ?)) AS rank", q).
			Where("board_id IN ?", boardIDs).
			Where("to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', ?)", q).
			Order("rank DESC").
			Limit(limit).
			Find(&posts).Error
	}

	metrics.GetManager().Search.RecordQuery(metrics.QueryMetric{
		Type:        "posts",
		Query:       q,
		ResultCount: len(posts),
		Duration:    time.Since(started),
		Error:       searchErr != nil,
		Timestamp:   started,
	})

	if searchErr != nil {
		if errors.Is(searchErr, context.DeadlineExceeded) {
			metrics.GetManager().Search.RecordTimeout()
		}
		telemetry.RecordServiceError(span, "search", searchErr)
		util.RespondInternalError(c, "Search failed")
		return
	}
	telemetry.RecordServiceSuccess(span, map[string]interface{}{"item_count": len(posts)})

	c.JSON(http.StatusOK, gin.H{
		"posts": posts,
		"meta": gin.H{
			"query": q,
			"count": len(posts),
			"limit": limit,
		},
	})
}

// SuggestTags returns tag prefix completions within the community,
// most used first
// GET /api/tags/suggestions?q=
func (h *Handlers) SuggestTags(c *gin.Context) {
	communityID, ok := util.GetCommunityIDFromContext(c)
	if !ok {
		return
	}

	prefix := strings.TrimSpace(c.Query("q"))
	limit := util.ParseInt(c.Query("limit"), 10)
	if limit < 1 || limit > 25 {
		limit = 10
	}

	type tagRow struct {
		Tag   string `json:"tag"`
		Usage int64  `json:"usage"`
	}

	_, span := telemetry.GetBusinessEvents().TraceSearch(c.Request.Context(), telemetry.SearchEventAttrs{
		QueryLength: int64(len(prefix)),
		Scope:       "tags",
	})
	defer span.End()

	started := time.Now()
	var rows []tagRow
	err := database.DB.Raw(`
		SELECT t.tag AS tag, COUNT(*) AS usage
		FROM (
			SELECT unnest(tags) AS tag, board_id
			FROM posts
			WHERE deleted_at IS NULL
		) t
		JOIN boards b ON b.id = t.board_id AND b.deleted_at IS NULL
		WHERE b.community_id = ? AND t.tag ILIKE ? || '%'
		GROUP BY t.tag
		ORDER BY usage DESC, t.tag ASC
		LIMIT ?`, communityID, prefix, limit).Scan(&rows).Error

	metrics.GetManager().Search.RecordQuery(metrics.QueryMetric{
		Type:        "tags",
		Query:       prefix,
		ResultCount: len(rows),
		Duration:    time.Since(started),
		Error:       err != nil,
		Timestamp:   started,
	})

	if err != nil {
		telemetry.RecordServiceError(span, "search", err)
		util.RespondInternalError(c, "Failed to fetch tag suggestions")
		return
	}
	telemetry.RecordServiceSuccess(span, map[string]interface{}{"item_count": len(rows)})

	c.JSON(http.StatusOK, gin.H{
		"suggestions": rows,
		"meta": gin.H{
			"query": prefix,
			"count": len(rows),
		},
	})
}

// visibleBoardIDsForRequest resolves the boards the caller can read,
// for scoping search queries.
func visibleBoardIDsForRequest(c *gin.Context, communityID string) ([]int64, bool) {
	var boards []models.Board
	if err := database.DB.
		Where("community_id = ?", communityID).
		Find(&boards).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch boards")
		return nil, false
	}

	isAdmin := util.IsAdminFromContext(c)
	roles := util.GetRolesFromContext(c)

	ids := make([]int64, 0, len(boards))
	for i := range boards {
		if isAdmin || boards[i].Settings.RoleAllowed(roles) {
			ids = append(ids, boards[i].ID)
		}
	}
	return ids, true
}
