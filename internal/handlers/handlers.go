package handlers

import (
	"github.com/flotob/curia-sub002/internal/activity"
	"github.com/flotob/curia-sub002/internal/auth"
	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/leaderboard"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/share"
	"github.com/flotob/curia-sub002/internal/storage"
	"github.com/flotob/curia-sub002/internal/telegram"
	"github.com/flotob/curia-sub002/internal/websocket"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	auth        *auth.Service
	gating      *gating.Service
	share       *share.Service
	redis       *cache.RedisClient
	activity    *activity.Service
	leaderboard *leaderboard.Service
	pageCache   *middleware.CacheManager

	wsHandler *websocket.Handler

	bot           *telegram.Bot
	notifier      *telegram.Notifier
	webhookSecret string

	uploader storage.BackgroundUploader
}

// NewHandlers creates a new handlers instance
func NewHandlers(authService *auth.Service, gatingService *gating.Service, shareService *share.Service, redis *cache.RedisClient) *Handlers {
	return &Handlers{
		auth:        authService,
		gating:      gatingService,
		share:       shareService,
		redis:       redis,
		activity:    activity.NewService(),
		leaderboard: leaderboard.NewService(redis),
		pageCache:   middleware.NewCacheManager(redis),
	}
}

// SetWebSocketHandler sets the WebSocket handler for real-time broadcasts
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// SetTelegram sets the bot used by the webhook and the notifier used for
// outbound fan-out. webhookSecret must match X-Telegram-Bot-Api-Secret-Token
// on incoming updates.
func (h *Handlers) SetTelegram(bot *telegram.Bot, notifier *telegram.Notifier, webhookSecret string) {
	h.bot = bot
	h.notifier = notifier
	h.webhookSecret = webhookSecret
}

// SetUploader sets the background image uploader. Nil leaves the upload
// endpoint responding 503.
func (h *Handlers) SetUploader(uploader storage.BackgroundUploader) {
	h.uploader = uploader
}
