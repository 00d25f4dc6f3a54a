package gating

import (
	"context"
	"log"
	"time"
)

// Retention window for expired pre-verification rows. Old rows stay
// around briefly so verification history shows up in lock stats, then
// get pruned.
const expiredRetention = 7 * 24 * time.Hour

// Janitor periodically flips stale pre-verifications to expired and
// prunes old rows.
type Janitor struct {
	service  *Service
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
}

// NewJanitor creates the expiry sweeper.
func NewJanitor(service *Service, interval time.Duration) *Janitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		service:  service,
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
	}
}

// Start begins the periodic sweep.
func (j *Janitor) Start() {
	log.Println("🧹 Starting pre-verification janitor")
	go j.run()
}

// Stop stops the janitor.
func (j *Janitor) Stop() {
	log.Println("🧹 Stopping pre-verification janitor")
	j.cancel()
}

// run executes sweeps on the configured interval
func (j *Janitor) run() {
	// Run immediately on startup
	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.ctx.Done():
			return
		}
	}
}

func (j *Janitor) sweep() {
	started := time.Now()

	expired, err := j.service.ExpireStale()
	if err != nil {
		log.Printf("❌ Pre-verification expiry sweep failed: %v", err)
		return
	}

	pruned, err := j.service.PruneExpired(expiredRetention)
	if err != nil {
		log.Printf("❌ Pre-verification prune failed: %v", err)
		return
	}

	if expired > 0 || pruned > 0 {
		log.Printf("✅ Pre-verification sweep: %d expired, %d pruned (took %v)",
			expired, pruned, time.Since(started))
	}
}
