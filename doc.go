// Package curia provides the Curia forum API server.

// This module contains the backend for token-gated community forums. The
// actual API documentation is organized into subpackages:

// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/auth: Session establishment and JWT verification
// - internal/gating: Lock evaluation and pre-verification lifecycle
// - internal/chain: JSON-RPC clients for Ethereum and LUKSO reads
// - internal/websocket: WebSocket server for presence and live updates
// - internal/telegram: Telegram bot, notifications, and daily digests
// - internal/share: Short share links with host-handshake redirects
// - internal/storage: File storage (S3) operations
// - internal/database: Database connection and migrations
// - internal/cache: Redis client and key layout
// - internal/middleware: HTTP middleware (rate limiting, caching, metrics)
// - internal/jobs: Cron scheduler for recurring background work
// - internal/leaderboard: Community activity scoring
// - internal/activity: What's-new digests since the last visit
// - internal/seed: Development and test fixtures

// See the individual package documentation for detailed API reference.
package curia
