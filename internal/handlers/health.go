package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/gin-gonic/gin"
)

const readinessProbeTimeout = 2 * time.Second

// GetHealth handles GET /health
// Liveness only: the process is up and serving. Deployment probes that
// need dependency status should hit /ready instead.
func (h *Handlers) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"service":   "curia-backend",
	})
}

// GetReadiness handles GET /ready
// Checks Postgres and Redis and reports per-dependency status. Any
// failing dependency turns the whole response into a 503 so the load
// balancer stops routing traffic here.
func (h *Handlers) GetReadiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessProbeTimeout)
	defer cancel()

	components := gin.H{}
	ready := true

	if err := database.Health(); err != nil {
		components["database"] = gin.H{"status": "unavailable", "error": err.Error()}
		ready = false
	} else {
		components["database"] = gin.H{"status": "ok"}
	}

	if h.redis == nil {
		components["redis"] = gin.H{"status": "unavailable", "error": "not configured"}
		ready = false
	} else if err := h.redis.Ping(ctx); err != nil {
		components["redis"] = gin.H{"status": "unavailable", "error": err.Error()}
		ready = false
	} else {
		components["redis"] = gin.H{"status": "ok"}
	}

	status := http.StatusOK
	overall := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"timestamp":  time.Now().UTC(),
		"components": components,
	})
}
