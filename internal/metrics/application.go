package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ApplicationMetrics tracks domain-specific metrics for forum activity
// (content creation, engagement, gating, sharing).
type ApplicationMetrics struct {
	// Content creation
	PostsCreated    prometheus.CounterVec
	CommentsCreated prometheus.CounterVec
	BoardsCreated   prometheus.CounterVec

	// Engagement
	ReactionsTotal prometheus.CounterVec

	// Token gating
	LocksCreated prometheus.CounterVec

	// Sharing
	ShareLinksMinted prometheus.CounterVec

	// Sessions
	SessionsTotal prometheus.CounterVec

	// Validation metrics
	ValidationFailures prometheus.CounterVec
}

var (
	appInstance *ApplicationMetrics
	appOnce     sync.Once
)

// InitializeApplicationMetrics creates and registers all application metrics
func InitializeApplicationMetrics() *ApplicationMetrics {
	appOnce.Do(func() {
		appInstance = &ApplicationMetrics{
			// Content creation metrics
			PostsCreated: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "posts_created_total",
					Help: "Total number of posts created",
				},
				[]string{"gated"},
			),
			CommentsCreated: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "comments_created_total",
					Help: "Total number of comments created",
				},
				[]string{},
			),
			BoardsCreated: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "boards_created_total",
					Help: "Total number of boards created",
				},
				[]string{},
			),

			// Engagement metrics
			ReactionsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reactions_total",
					Help: "Total number of reaction toggles",
				},
				[]string{"action"},
			),

			// Gating metrics
			LocksCreated: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "locks_created_total",
					Help: "Total number of locks created",
				},
				[]string{},
			),

			// Sharing metrics
			ShareLinksMinted: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "share_links_minted_total",
					Help: "Total number of share links minted",
				},
				[]string{},
			),

			// Session metrics
			SessionsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessions_total",
					Help: "Total number of session requests",
				},
				[]string{"status"},
			),

			// Validation metrics
			ValidationFailures: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "validation_failures_total",
					Help: "Total validation failures",
				},
				[]string{"field", "reason"},
			),
		}
	})
	return appInstance
}

// App returns the global application metrics instance
func App() *ApplicationMetrics {
	if appInstance == nil {
		return InitializeApplicationMetrics()
	}
	return appInstance
}
