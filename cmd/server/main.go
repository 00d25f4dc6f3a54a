package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flotob/curia-sub002/internal/auth"
	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/chain"
	"github.com/flotob/curia-sub002/internal/config"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/handlers"
	"github.com/flotob/curia-sub002/internal/jobs"
	"github.com/flotob/curia-sub002/internal/leaderboard"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/share"
	"github.com/flotob/curia-sub002/internal/storage"
	"github.com/flotob/curia-sub002/internal/telegram"
	"github.com/flotob/curia-sub002/internal/telemetry"
	"github.com/flotob/curia-sub002/internal/validation"
	"github.com/flotob/curia-sub002/internal/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	log.Println("=== Curia server starting ===")

	// Hard-fail on unreachable required services before touching any
	// subsystem; everything not listed degrades at runtime instead.
	if err := validation.NewServiceValidator().ValidateServices(context.Background()); err != nil {
		log.Fatalf("Service validation failed: %v", err)
	}

	// Initialize tracing. Disabled unless OTEL_ENABLED=true; everything
	// downstream no-ops against the global provider when off.
	tp, err := telemetry.InitTracer(telemetry.ConfigFromEnv("curia-backend", cfg.Environment))
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	// Initialize database
	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis. The server runs without it: caches miss, rate
	// limiting falls back to in-memory, share links and telegram connect
	// codes are disabled.
	redisClient, err := cache.NewRedisClient(
		os.Getenv("REDIS_HOST"),
		os.Getenv("REDIS_PORT"),
		os.Getenv("REDIS_PASSWORD"),
	)
	if err != nil {
		log.Printf("Warning: Redis unavailable: %v", err)
		log.Println("Continuing without Redis - caching and share links degraded")
		redisClient = nil
	}

	// Initialize auth service
	authService := auth.NewService([]byte(cfg.JWTSecret), []byte(cfg.SessionSecret), cfg.SessionTTL)

	// Initialize chain clients for token gating. A missing RPC URL
	// disables that chain; verification endpoints answer 503 for it.
	var ethClient, luksoClient *chain.Client
	if cfg.EthRPCURL != "" {
		ethClient = chain.NewClient("ethereum", cfg.EthRPCURL)
	} else {
		log.Println("Warning: ETH_RPC_URL not set - Ethereum gating disabled")
	}
	if cfg.LuksoRPCURL != "" {
		luksoClient = chain.NewClient("lukso", cfg.LuksoRPCURL)
	} else {
		log.Println("Warning: LUKSO_RPC_URL not set - LUKSO gating disabled")
	}
	gatingService := gating.NewService(gating.NewEvaluator(ethClient, luksoClient))

	// Initialize share link service
	shareService := share.NewService(redisClient, cfg.PublicBaseURL, cfg.CommonGroundBaseURL)

	// Initialize handlers
	h := handlers.NewHandlers(authService, gatingService, shareService, redisClient)

	// Initialize S3 uploader for community backgrounds
	if cfg.S3Enabled() {
		s3Uploader, err := storage.NewS3Uploader(cfg.S3Region, cfg.S3Bucket, cfg.S3BaseURL, cfg.S3ACL)
		if err != nil {
			log.Fatalf("Failed to initialize S3 uploader: %v", err)
		}
		if err := s3Uploader.CheckBucketAccess(context.Background()); err != nil {
			log.Printf("Warning: S3 bucket access failed: %v", err)
			log.Println("Continuing without S3 - background uploads will fail")
		}
		h.SetUploader(s3Uploader)
	} else {
		log.Println("S3 not configured - background uploads disabled")
	}

	// Initialize Telegram bot and notification fan-out
	var notifier *telegram.Notifier
	if cfg.TelegramEnabled() {
		bot, err := telegram.NewBot(cfg.TelegramBotToken, cfg.TelegramBotName, redisClient)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram bot: %v", err)
		}
		if err := bot.RegisterWebhook(cfg.PublicBaseURL, cfg.TelegramWebhookSecret); err != nil {
			log.Printf("Warning: Telegram webhook registration failed: %v", err)
		}

		notifier = telegram.NewNotifier(bot, shareService)
		notifier.Start()
		defer notifier.Stop()

		h.SetTelegram(bot, notifier, cfg.TelegramWebhookSecret)
	} else {
		log.Println("TELEGRAM_BOT_TOKEN not set - Telegram integration disabled")
	}

	// Initialize WebSocket hub and handler
	wsHub := websocket.NewHub()
	wsHandler := websocket.NewHandler(wsHub, authService, cfg.AllowedOrigins)

	// Initialize presence manager
	presenceManager := websocket.NewPresenceManager(wsHub, websocket.DefaultPresenceConfig())
	wsHandler.SetPresenceManager(presenceManager)
	presenceManager.Start()
	defer presenceManager.Stop()

	// Start WebSocket hub in background
	go wsHub.Run()

	h.SetWebSocketHandler(wsHandler)

	// Start the verification expiry janitor
	janitor := gating.NewJanitor(gatingService, 10*time.Minute)
	janitor.Start()
	defer janitor.Stop()

	// Start the cron scheduler (leaderboard warming, expiry sweeps,
	// optional daily digests)
	scheduler, err := jobs.NewScheduler(leaderboard.NewService(redisClient), gatingService, notifier)
	if err != nil {
		log.Fatalf("Failed to initialize job scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.TracingMiddleware("curia-backend"))
	r.Use(middleware.SpanEnrichment())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/ws"})))

	// CORS middleware. The shared-content cookie needs credentials, so
	// dev mode reflects any origin instead of using the wildcard.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID", "X-Impersonate-User-Id"}
	corsConfig.AllowCredentials = true
	switch {
	case len(cfg.AllowedOrigins) > 0:
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	case cfg.IsProduction():
		corsConfig.AllowOrigins = []string{cfg.PublicBaseURL}
	default:
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	r.Use(cors.New(corsConfig))

	// Probes and Prometheus scrape endpoint
	r.GET("/health", h.GetHealth)
	r.GET("/ready", h.GetReadiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public share-link resolution, sets the shared-content cookie and
	// redirects into the host platform
	r.GET("/c/:communityShortId/:pluginId/:token", h.ResolveShareURL)

	// Host handshake (public, rate limited)
	r.POST("/api/auth/session", middleware.RateLimitSmartAuth(), h.EstablishSession)

	// Telegram webhook (authenticated by secret token header)
	r.POST("/api/telegram/webhook", h.TelegramWebhook)

	// WebSocket upgrade authenticates via ?token= or bearer header
	r.GET("/api/ws", wsHandler.HandleWebSocket)

	// Authenticated API routes
	api := r.Group("/api")
	api.Use(middleware.RateLimitSmartDefault())
	api.Use(h.AuthMiddleware())
	api.Use(middleware.AdminImpersonationMiddleware())
	{
		// Session user
		api.GET("/me", h.GetMe)
		api.GET("/me/friends", h.GetMyFriends)
		api.POST("/me/friends/sync", h.SyncMyFriends)
		api.GET("/me/whats-new", h.GetWhatsNew)
		api.GET("/me/shared-content", h.GetSharedContent)

		// Communities
		api.GET("/communities", h.ListMyCommunities)
		communities := api.Group("/communities/:communityId")
		{
			communities.GET("", h.GetCommunity)
			communities.PATCH("", middleware.RequireAdmin(), h.UpdateCommunity)
			communities.POST("/background", middleware.RequireAdmin(), middleware.RateLimitSmartUpload(), h.UploadCommunityBackground)
			communities.GET("/leaderboard", middleware.ResponseCacheMiddleware(time.Minute), h.GetLeaderboard)

			// Boards
			communities.GET("/boards", h.ListBoards)
			communities.POST("/boards", middleware.RequireAdmin(), h.CreateBoard)
			communities.GET("/boards/:boardId", h.GetBoard)
			communities.PATCH("/boards/:boardId", middleware.RequireAdmin(), h.UpdateBoard)
			communities.DELETE("/boards/:boardId", middleware.RequireAdmin(), h.DeleteBoard)
			communities.GET("/boards/:boardId/verification-status", h.GetBoardVerificationStatus)

			// Posts live under their board for list/create
			communities.GET("/boards/:boardId/posts", middleware.ResponseCacheMiddleware(30*time.Second), h.ListBoardPosts)
			communities.POST("/boards/:boardId/posts", h.CreatePost)

			// Telegram group management
			communities.POST("/telegram/connect-code", middleware.RequireAdmin(), h.MintTelegramConnectCode)
			communities.GET("/telegram/groups", middleware.RequireAdmin(), h.ListTelegramGroups)
			communities.PATCH("/telegram/groups/:chatId", middleware.RequireAdmin(), h.UpdateTelegramGroup)
			communities.DELETE("/telegram/groups/:chatId", middleware.RequireAdmin(), h.RemoveTelegramGroup)
			communities.POST("/telegram/test", middleware.RequireAdmin(), h.SendTestTelegramNotification)
		}

		// Posts addressed by id
		posts := api.Group("/posts/:postId")
		{
			posts.GET("", h.GetPost)
			posts.PATCH("", h.UpdatePost)
			posts.DELETE("", h.DeletePost)
			posts.GET("/comments", h.ListComments)
			posts.POST("/comments", h.CreateComment)
			posts.GET("/reactions", h.GetPostReactions)
			posts.POST("/reactions", h.AddPostReaction)
			posts.DELETE("/reactions", h.RemovePostReaction)
			posts.GET("/verification-status", h.GetPostVerificationStatus)
			posts.POST("/share", h.SharePost)
		}

		// Comments
		comments := api.Group("/comments/:commentId")
		{
			comments.PATCH("", h.UpdateComment)
			comments.DELETE("", h.DeleteComment)
			comments.GET("/reactions", h.GetCommentReactions)
			comments.POST("/reactions", h.AddCommentReaction)
			comments.DELETE("/reactions", h.RemoveCommentReaction)
		}

		// Locks and verification
		api.GET("/locks", h.ListLocks)
		api.POST("/locks", h.CreateLock)
		locks := api.Group("/locks/:lockId")
		{
			locks.GET("", h.GetLock)
			locks.PATCH("", h.UpdateLock)
			locks.DELETE("", h.DeleteLock)
			locks.GET("/gating-requirements", h.GetLockGatingRequirements)
			locks.POST("/verify", h.VerifyLock)
			locks.GET("/verification-status", h.GetLockVerificationStatus)
			locks.GET("/reactions", h.GetLockReactions)
			locks.POST("/reactions", h.AddLockReaction)
			locks.DELETE("/reactions", h.RemoveLockReaction)
		}

		// Search
		api.GET("/search/posts", middleware.RateLimitSmartSearch(), h.SearchPosts)
		api.GET("/tags/suggestions", middleware.ResponseCacheMiddleware(5*time.Minute), h.SuggestTags)

		// Presence snapshot and websocket introspection
		api.GET("/presence", wsHandler.HandlePresence)
		api.GET("/ws/metrics", wsHandler.HandleMetrics)
		api.POST("/ws/online", wsHandler.HandleOnlineStatus)

		// In-process metrics (JSON, distinct from the Prometheus scrape)
		api.GET("/metrics", h.GetAllMetrics)
		api.GET("/metrics/search", h.GetSearchMetrics)
		api.GET("/metrics/gating", h.GetGatingMetrics)
		api.POST("/metrics/reset", h.ResetMetrics)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("🏛  Curia backend starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown WebSocket connections gracefully
	if err := wsHandler.Shutdown(ctx); err != nil {
		log.Printf("WebSocket shutdown warning: %v", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
