package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/chain"
	apperrors "github.com/flotob/curia-sub002/internal/errors"
	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/util"
)

// VerifyLock runs a lock's gating challenge for the caller's wallet and,
// on success, stores a pre-verification. An optional board_id picks up
// that board's verification duration override.
// POST /api/locks/:lockId/verify
func (h *Handlers) VerifyLock(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	lock, ok := h.loadCommunityLock(c)
	if !ok {
		return
	}

	var req struct {
		gating.VerifyRequest
		BoardID *int64 `json:"board_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if _, err := chain.NormalizeAddress(req.WalletAddress); err != nil {
		util.RespondValidationError(c, "wallet_address", "wallet address must be 0x followed by 40 hex characters")
		return
	}

	var boardGating *models.LockGating
	if req.BoardID != nil {
		board, ok := loadVisibleBoard(c, *req.BoardID)
		if !ok {
			return
		}
		boardGating = board.Settings.LockGating()
	}
	duration := gating.ResolveDuration(boardGating, lock)

	started := time.Now()
	result, err := h.gating.Verify(c.Request.Context(), userID, lock, &req.VerifyRequest, duration)
	elapsed := time.Since(started)
	if err != nil {
		logger.Log.Warn("lock verification errored",
			logger.WithLockID(lock.ID),
			logger.WithUserID(userID),
			zap.String("category", req.CategoryType),
			zap.Error(err))
		middleware.RecordGatingVerification(req.CategoryType, "error", elapsed)
		metrics.GetManager().Gating.RecordVerification(metrics.VerifyMetric{
			Category:  req.CategoryType,
			Error:     true,
			Duration:  elapsed,
			Timestamp: time.Now(),
		})
		h.respondVerificationError(c, err)
		return
	}

	status := "failed"
	if result.Verified {
		status = "verified"
	}
	middleware.RecordGatingVerification(req.CategoryType, status, elapsed)
	metrics.GetManager().Gating.RecordVerification(metrics.VerifyMetric{
		Category:     req.CategoryType,
		Passed:       result.Verified,
		Requirements: len(result.Category.Checks),
		Duration:     elapsed,
		Timestamp:    time.Now(),
	})

	// Not meeting the requirements is a regular outcome with full
	// per-requirement detail, not an error.
	response := gin.H{
		"lock_id":  lock.ID,
		"verified": result.Verified,
		"category": result.Category,
	}
	if result.PreVerification != nil {
		response["expires_at"] = result.PreVerification.ExpiresAt
	}
	c.JSON(http.StatusOK, response)
}

// GetLockVerificationStatus reports whether the caller holds a live
// pre-verification for one lock.
// GET /api/locks/:lockId/verification-status
func (h *Handlers) GetLockVerificationStatus(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	lock, ok := h.loadCommunityLock(c)
	if !ok {
		return
	}

	statuses, err := h.gating.Status(userID, []int64{lock.ID})
	if err != nil {
		util.RespondInternalError(c, "Failed to load verification status")
		return
	}

	status := statuses[0]
	response := gin.H{
		"lock_id":  lock.ID,
		"verified": status.Verified,
	}
	if status.ExpiresAt != nil {
		response["expires_at"] = status.ExpiresAt
	}
	if len(status.Records) > 0 {
		categories := make([]string, 0, len(status.Records))
		for _, record := range status.Records {
			categories = append(categories, record.CategoryType)
		}
		response["categories"] = categories
	}
	c.JSON(http.StatusOK, response)
}

// GetPostVerificationStatus reports, per lock gating replies to the
// post, whether the caller holds a live pre-verification.
// GET /api/posts/:postId/verification-status
func (h *Handlers) GetPostVerificationStatus(c *gin.Context) {
	postID, err := util.ParseID(c.Param("postId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid post id")
		return
	}
	post, _, ok := loadAccessiblePost(c, postID)
	if !ok {
		return
	}
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	lockGating := commentLockGating(post)
	if lockGating == nil {
		c.JSON(http.StatusOK, gin.H{
			"post_id":     post.ID,
			"gated":       false,
			"can_comment": true,
			"locks":       []gin.H{},
		})
		return
	}

	satisfied, rows := h.lockGatingSummary(c, userID, lockGating)
	if rows == nil {
		return
	}

	// The thread author replies freely regardless of gating.
	canComment := satisfied || post.AuthorUserID == userID

	c.JSON(http.StatusOK, gin.H{
		"post_id":     post.ID,
		"gated":       true,
		"can_comment": canComment,
		"fulfillment": lockGating.Fulfillment,
		"locks":       rows,
	})
}

// respondVerificationError maps verification failures onto the API
// error taxonomy. Chain transport trouble is upstream, not client
// error.
func (h *Handlers) respondVerificationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gating.ErrCategoryNotConfigured):
		util.RespondValidationError(c, "category_type", "lock has no enabled category of this type")
	case errors.Is(err, gating.ErrMalformedSignature):
		util.RespondValidationError(c, "signature", "malformed signature encoding")
	case errors.Is(err, gating.ErrSignatureRejected):
		util.RespondValidationError(c, "signature", "wallet signature rejected")
	case errors.Is(err, gating.ErrChainDisabled):
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("chain verification"))
	case errors.Is(err, context.DeadlineExceeded):
		util.RespondWithAPIError(c, apperrors.Timeout("chain verification"))
	case chain.IsUnavailable(err):
		util.RespondUpstream(c, "chain rpc")
	default:
		util.RespondInternalError(c, "Verification failed")
	}
}
