package jobs

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/leaderboard"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/telegram"
)

// activeWindow bounds which communities the leaderboard warmer recomputes.
const activeWindow = 24 * time.Hour

// Scheduler runs the cron side of background maintenance: leaderboard
// cache warming, an hourly verification sweep fallback, connection pool
// gauge sampling and the opt-in Telegram daily digest. Pre-verification
// expiry also runs on the dedicated janitor interval, so a stopped
// scheduler never lets stale verifications count.
type Scheduler struct {
	cron        *cron.Cron
	leaderboard *leaderboard.Service
	gating      *gating.Service
	notifier    *telegram.Notifier
}

// NewScheduler registers the jobs. notifier may be nil; the daily digest
// additionally requires TELEGRAM_DAILY_DIGEST=true.
func NewScheduler(leaderboardService *leaderboard.Service, gatingService *gating.Service, notifier *telegram.Notifier) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(),
		leaderboard: leaderboardService,
		gating:      gatingService,
		notifier:    notifier,
	}

	if _, err := s.cron.AddFunc("*/5 * * * *", s.warmLeaderboards); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("0 * * * *", s.sweepVerifications); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("* * * * *", s.samplePoolStats); err != nil {
		return nil, err
	}
	if notifier != nil && os.Getenv("TELEGRAM_DAILY_DIGEST") == "true" {
		if _, err := s.cron.AddFunc("0 9 * * *", s.sendDailyDigests); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Jobs returns how many jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start begins running the registered jobs.
func (s *Scheduler) Start() {
	log.Printf("⏰ Starting job scheduler (%d jobs)", s.Jobs())
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	log.Println("⏰ Stopping job scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) warmLeaderboards() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	warmed, err := s.leaderboard.WarmActive(ctx, activeWindow)
	if err != nil {
		log.Printf("❌ Leaderboard warm failed: %v", err)
		return
	}
	if warmed > 0 {
		log.Printf("🔥 Warmed %d leaderboard caches", warmed)
	}
}

func (s *Scheduler) sweepVerifications() {
	expired, err := s.gating.ExpireStale()
	if err != nil {
		log.Printf("❌ Verification sweep failed: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("🧹 Expired %d stale pre-verifications", expired)
	}
}

func (s *Scheduler) sendDailyDigests() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.notifier.SendDailyDigests(ctx); err != nil {
		log.Printf("❌ Daily digest run failed: %v", err)
	}
}

// samplePoolStats feeds the connection pool gauges once a minute
func (s *Scheduler) samplePoolStats() {
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			middleware.SetDatabaseConnections(database.Driver(), sqlDB.Stats().OpenConnections)
		}
	}
	if redis := cache.GetRedisClient(); redis != nil {
		middleware.SetRedisConnections("primary", int(redis.PoolStats().TotalConns))
	}
}
