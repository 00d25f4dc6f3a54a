package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/leaderboard"
	"github.com/flotob/curia-sub002/internal/telegram"
)

func TestNewSchedulerRegistersBaseJobs(t *testing.T) {
	scheduler, err := NewScheduler(
		leaderboard.NewService(nil),
		gating.NewService(gating.NewEvaluator(nil, nil)),
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, 3, scheduler.Jobs())
}

func TestDailyDigestJobIsOptIn(t *testing.T) {
	leaderboardService := leaderboard.NewService(nil)
	gatingService := gating.NewService(gating.NewEvaluator(nil, nil))
	notifier := telegram.NewNotifier(nil, nil)

	// A configured notifier alone is not enough.
	scheduler, err := NewScheduler(leaderboardService, gatingService, notifier)
	require.NoError(t, err)
	assert.Equal(t, 3, scheduler.Jobs())

	t.Setenv("TELEGRAM_DAILY_DIGEST", "true")
	scheduler, err = NewScheduler(leaderboardService, gatingService, notifier)
	require.NoError(t, err)
	assert.Equal(t, 4, scheduler.Jobs())
}

func TestSchedulerStartStop(t *testing.T) {
	scheduler, err := NewScheduler(
		leaderboard.NewService(nil),
		gating.NewService(gating.NewEvaluator(nil, nil)),
		nil,
	)
	require.NoError(t, err)

	scheduler.Start()
	scheduler.Stop()
}
