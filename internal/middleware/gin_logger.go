package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/logger"
)

// Probes and scrapes fire every few seconds and would drown real
// traffic in the request log.
var quietPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// GinLoggerMiddleware logs one structured line per request, replacing
// gin.Logger. The level follows the response status so failures stand
// out without grepping.
func GinLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Capture before the handler runs; some handlers rewrite the URL.
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if quietPaths[path] {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			logger.WithIP(c.ClientIP()),
			logger.WithStatus(status),
			zap.Int("response_size", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			fields = append(fields, logger.WithRequestID(requestID))
		}
		if userID := c.GetString("user_id"); userID != "" {
			fields = append(fields, logger.WithUserID(userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Log.Error("HTTP request", fields...)
		case status >= 400:
			logger.Log.Warn("HTTP request", fields...)
		default:
			logger.Log.Info("HTTP request", fields...)
		}
	}
}
