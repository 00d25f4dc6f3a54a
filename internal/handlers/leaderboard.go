package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flotob/curia-sub002/internal/util"
)

const defaultLeaderboardSize = 20

// GetLeaderboard returns the community's activity ranking. Results come
// from a five-minute Redis cache; admins can force a recompute with
// ?fresh=1.
// GET /api/communities/:communityId/leaderboard
func (h *Handlers) GetLeaderboard(c *gin.Context) {
	communityID, ok := communityFromPath(c)
	if !ok {
		return
	}
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit := util.ParseInt(c.Query("limit"), defaultLeaderboardSize)
	if limit < 1 {
		limit = defaultLeaderboardSize
	}
	if limit > 100 {
		limit = 100
	}

	fresh := c.Query("fresh") == "1" && util.IsAdminFromContext(c)

	ranking, err := h.leaderboard.Get(c.Request.Context(), communityID, fresh)
	if err != nil {
		util.RespondInternalError(c, "Failed to compute leaderboard")
		return
	}

	top := ranking
	if len(top) > limit {
		top = top[:limit]
	}

	response := gin.H{
		"leaderboard": top,
		"meta": gin.H{
			"community_id": communityID,
			"limit":        limit,
			"total":        len(ranking),
		},
	}

	// The caller's own row rides along when they did not make the cut.
	inTop := false
	for i := range top {
		if top[i].UserID == userID {
			inTop = true
			break
		}
	}
	if !inTop {
		for i := range ranking {
			if ranking[i].UserID == userID {
				response["me"] = ranking[i]
				break
			}
		}
	}

	c.JSON(http.StatusOK, response)
}
