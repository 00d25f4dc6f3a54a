package handlers

import (
	"net/http"

	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/util"
	"github.com/gin-gonic/gin"
)

// GetSearchMetrics handles GET /api/metrics/search
func (h *Handlers) GetSearchMetrics(c *gin.Context) {
	stats := metrics.GetManager().GetSearchStats()

	c.JSON(http.StatusOK, gin.H{
		"data":      stats,
		"timestamp": stats["timestamp"],
	})
}

// GetGatingMetrics handles GET /api/metrics/gating
func (h *Handlers) GetGatingMetrics(c *gin.Context) {
	stats := metrics.GetManager().GetGatingStats()

	c.JSON(http.StatusOK, gin.H{
		"data":      stats,
		"timestamp": stats["timestamp"],
	})
}

// GetAllMetrics handles GET /api/metrics
func (h *Handlers) GetAllMetrics(c *gin.Context) {
	allMetrics := metrics.GetManager().GetAllMetrics()
	allMetrics["response_cache"] = h.pageCache.GetCacheStats(c.Request.Context(), "response")

	c.JSON(http.StatusOK, gin.H{
		"metrics":   allMetrics,
		"timestamp": allMetrics["search"].(map[string]interface{})["timestamp"],
	})
}

// ResetMetrics handles POST /api/metrics/reset
// Clears the in-process counters, not the Prometheus series.
func (h *Handlers) ResetMetrics(c *gin.Context) {
	if _, ok := util.GetUserIDFromContext(c); !ok {
		return
	}

	if !util.IsAdminFromContext(c) {
		util.RespondForbidden(c)
		return
	}

	metrics.GetManager().ResetAll()

	c.JSON(http.StatusOK, gin.H{
		"status": "reset",
	})
}
