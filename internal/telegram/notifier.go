package telegram

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/share"
	"github.com/flotob/curia-sub002/internal/telemetry"
)

// UpvoteMilestones are the cumulative counts that trigger a notification.
var UpvoteMilestones = []int{5, 10, 25, 50, 100}

// UpvoteMilestone returns the milestone an upvote count just reached, or 0
// when the count is not one.
func UpvoteMilestone(count int) int {
	for _, m := range UpvoteMilestones {
		if count == m {
			return m
		}
	}
	return 0
}

// Notification is one forum event bound for a community's Telegram groups.
// Display fields are resolved at enqueue time so the worker never touches
// the originating request's models.
type Notification struct {
	ID          string
	Type        string // models.TelegramEvent*
	CommunityID string
	BoardID     int64
	BoardName   string
	PostID      int64
	PostTitle   string
	Preview     string
	ActorName   string
	Milestone   int
	CreatedAt   time.Time

	// CorrelationID ties delivery logs back to the request that
	// produced the event
	CorrelationID string
}

// NewPostNotification builds the event for a freshly created post.
func NewPostNotification(post *models.Post, board *models.Board, author *models.User) *Notification {
	return &Notification{
		ID:          uuid.New().String(),
		Type:        models.TelegramEventPostCreated,
		CommunityID: board.CommunityID,
		BoardID:     board.ID,
		BoardName:   board.Name,
		PostID:      post.ID,
		PostTitle:   post.Title,
		Preview:     preview(post.Content),
		ActorName:   author.Name,
		CreatedAt:   time.Now(),
	}
}

// NewCommentNotification builds the event for a new comment on a post.
func NewCommentNotification(comment *models.Comment, post *models.Post, board *models.Board, author *models.User) *Notification {
	return &Notification{
		ID:          uuid.New().String(),
		Type:        models.TelegramEventCommentCreated,
		CommunityID: board.CommunityID,
		BoardID:     board.ID,
		BoardName:   board.Name,
		PostID:      post.ID,
		PostTitle:   post.Title,
		Preview:     preview(comment.Content),
		ActorName:   author.Name,
		CreatedAt:   time.Now(),
	}
}

// NewMilestoneNotification builds the event for a post whose upvote count
// just crossed a milestone.
func NewMilestoneNotification(post *models.Post, board *models.Board, milestone int) *Notification {
	return &Notification{
		ID:          uuid.New().String(),
		Type:        models.TelegramEventUpvoteMilestone,
		CommunityID: board.CommunityID,
		BoardID:     board.ID,
		BoardName:   board.Name,
		PostID:      post.ID,
		PostTitle:   post.Title,
		Milestone:   milestone,
		CreatedAt:   time.Now(),
	}
}

// NewTestNotification builds the admin-requested delivery check. It has no
// post behind it, so no share link is minted.
func NewTestNotification(communityID, actorName string) *Notification {
	return &Notification{
		ID:          uuid.New().String(),
		Type:        models.TelegramEventTest,
		CommunityID: communityID,
		ActorName:   actorName,
		CreatedAt:   time.Now(),
	}
}

// Sender delivers one rendered message to one chat. *Bot implements it.
type Sender interface {
	SendHTML(ctx context.Context, chatID int64, text string) error
}

// Notifier fans forum events out to every bound Telegram group through a
// background worker pool. Delivery is best effort: failures are logged and
// never surface to the request that produced the event.
type Notifier struct {
	events  chan *Notification
	workers int
	ctx     context.Context
	cancel  context.CancelFunc

	sender Sender
	share  *share.Service

	// For testing: signals each fully fanned-out notification
	delivered chan string
}

// NewNotifier creates a notifier delivering through sender. shareService
// may be nil, which disables deep links in messages.
func NewNotifier(sender Sender, shareService *share.Service) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	return &Notifier{
		events:    make(chan *Notification, 100),
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
		sender:    sender,
		share:     shareService,
		delivered: make(chan string, 100),
	}
}

// Start begins delivering events with the worker pool.
func (n *Notifier) Start() {
	logger.Log.Info("Starting telegram notifier", zap.Int("workers", n.workers))

	for i := 0; i < n.workers; i++ {
		go n.worker(i)
	}
}

// Stop gracefully shuts down the notifier.
func (n *Notifier) Stop() {
	n.cancel()
	close(n.events)
}

// Submit queues a notification. It never blocks the caller: a full queue
// drops the event with an error the caller is expected to just log.
func (n *Notifier) Submit(event *Notification) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	select {
	case n.events <- event:
		return nil
	default:
		return fmt.Errorf("notification queue is full")
	}
}

func (n *Notifier) worker(workerID int) {
	logger.Log.Info("Telegram notifier worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case event := <-n.events:
			if event == nil {
				logger.Log.Info("Telegram notifier worker shutting down", zap.Int("worker_id", workerID))
				return
			}

			n.deliver(workerID, event)

		case <-n.ctx.Done():
			logger.Log.Info("Telegram notifier worker shutting down", zap.Int("worker_id", workerID))
			return
		}
	}
}

func (n *Notifier) deliver(workerID int, event *Notification) {
	defer n.signalDelivered(event.ID)

	ctx, cancel := context.WithTimeout(n.ctx, time.Minute)
	defer cancel()

	var groups []models.TelegramGroup
	err := database.DB.WithContext(ctx).
		Where("community_id = ? AND is_active = ? AND notifications_enabled = ?",
			event.CommunityID, true, true).
		Find(&groups).Error
	if err != nil {
		logger.Log.Error("❌ Failed to load telegram groups",
			zap.Int("worker_id", workerID),
			zap.String("community_id", event.CommunityID),
			zap.Error(err),
		)
		return
	}
	if len(groups) == 0 {
		return
	}

	ctx, span := telemetry.GetBusinessEvents().TraceTelegramNotify(ctx, event.Type, int64(len(groups)))
	defer span.End()

	var community models.Community
	if err := database.DB.WithContext(ctx).First(&community, "id = ?", event.CommunityID).Error; err != nil {
		logger.Log.Warn("Community missing for telegram notification",
			zap.String("community_id", event.CommunityID),
			zap.Error(err),
		)
	}

	now := time.Now()
	var shareURL string
	minted := false
	sent, skipped := 0, 0

	for i := range groups {
		group := &groups[i]
		settings := group.NotificationSettings

		if !settings.EventEnabled(event.Type) {
			skipped++
			continue
		}
		// A requested test delivers even during the quiet window.
		if event.Type != models.TelegramEventTest && settings.InQuietHours(now) {
			skipped++
			continue
		}

		link := ""
		if settings.ShareLinkEnabled() && event.PostID != 0 {
			if !minted {
				shareURL = n.mintShareURL(ctx, event.BoardID, event.PostID, &community)
				minted = true
			}
			link = shareURL
		}

		if err := n.sender.SendHTML(ctx, group.ChatID, formatNotification(event, link)); err != nil {
			logger.Log.Warn("⚠️ Telegram delivery failed",
				zap.Int("worker_id", workerID),
				zap.Int64("chat_id", group.ChatID),
				zap.String("event_type", event.Type),
				zap.String("correlation_id", event.CorrelationID),
				zap.Error(err),
			)
			middleware.RecordTelegramNotification(event.Type, "failed")
			continue
		}
		sent++
		middleware.RecordTelegramNotification(event.Type, "sent")
		n.recordDelivery(ctx, group.ChatID, now)
	}

	if sent > 0 || skipped > 0 {
		logger.Log.Info("✅ Telegram notification delivered",
			zap.Int("worker_id", workerID),
			zap.String("event_type", event.Type),
			zap.String("community_id", event.CommunityID),
			zap.Int("sent", sent),
			zap.Int("skipped", skipped),
		)
	}
}

// recordDelivery bumps a group's delivery stats after a successful send.
func (n *Notifier) recordDelivery(ctx context.Context, chatID int64, now time.Time) {
	err := database.DB.WithContext(ctx).
		Model(&models.TelegramGroup{}).
		Where("chat_id = ?", chatID).
		Updates(map[string]interface{}{
			"last_notification_at": now,
			"notification_count":   gorm.Expr("notification_count + 1"),
		}).Error
	if err != nil {
		logger.Log.Warn("Failed to update telegram delivery stats",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

// mintShareURL produces a deep link into the forum, or "" when the
// community has no host identifiers yet.
func (n *Notifier) mintShareURL(ctx context.Context, boardID, postID int64, community *models.Community) string {
	if n.share == nil || community.CommunityShortID == "" || community.PluginID == "" {
		return ""
	}

	_, url, err := n.share.Mint(ctx, share.Payload{
		CommunityShortID: community.CommunityShortID,
		PluginID:         community.PluginID,
		BoardID:          boardID,
		PostID:           postID,
	})
	if err != nil {
		logger.Log.Warn("Failed to mint share URL for telegram notification",
			zap.Int64("post_id", postID),
			zap.Error(err),
		)
		return ""
	}
	return url
}

// WaitForDelivery blocks until the given notification finished fan-out
// (for testing).
func (n *Notifier) WaitForDelivery(eventID string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case deliveredID := <-n.delivered:
			if deliveredID == eventID {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for notification %s", eventID)
		case <-n.ctx.Done():
			return fmt.Errorf("notifier stopped")
		}
	}
}

func (n *Notifier) signalDelivered(eventID string) {
	select {
	case n.delivered <- eventID:
	default:
		// Channel full, don't block
	}
}
