package gating

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flotob/curia-sub002/internal/chain"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/telemetry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrLockNotFound       = errors.New("lock not found")
	ErrSignatureRejected  = errors.New("wallet signature rejected")
	ErrMalformedSignature = errors.New("malformed signature encoding")
)

// Service runs lock verification and enforces pre-verification state.
type Service struct {
	evaluator *Evaluator
}

// NewService creates the gating service.
func NewService(evaluator *Evaluator) *Service {
	return &Service{evaluator: evaluator}
}

// Evaluator exposes the underlying chain evaluator for handlers that
// only need standard detection or raw category checks.
func (s *Service) Evaluator() *Evaluator {
	return s.evaluator
}

// VerifyRequest is the payload of a verification attempt.
type VerifyRequest struct {
	CategoryType  string `json:"category_type" binding:"required"`
	WalletAddress string `json:"wallet_address" binding:"required"`
	Signature     string `json:"signature,omitempty"`
	Message       string `json:"message,omitempty"`
}

// VerifyResult is what a verification attempt produced.
type VerifyResult struct {
	Verified        bool                    `json:"verified"`
	Category        *CategoryResult         `json:"category"`
	PreVerification *models.PreVerification `json:"pre_verification,omitempty"`
}

// Verify evaluates a lock's category requirements for the wallet and,
// on success, upserts the caller's pre-verification with the given
// lifetime. A failed evaluation is a normal outcome, not an error.
func (s *Service) Verify(ctx context.Context, userID string, lock *models.Lock, req *VerifyRequest, duration time.Duration) (*VerifyResult, error) {
	wallet, err := chain.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, err
	}

	category := lock.GatingConfig.Category(req.CategoryType)
	if category == nil {
		return nil, ErrCategoryNotConfigured
	}

	ctx, span := telemetry.GetBusinessEvents().TraceVerification(ctx, telemetry.VerificationEventAttrs{
		LockID:       lock.ID,
		Category:     category.Type,
		Requirements: int64(len(category.Requirements)),
	})
	defer span.End()

	started := time.Now()

	// Universal Profiles prove wallet control through ERC-1271; the
	// host platform already attests EOA ownership for linked wallets.
	if req.Signature != "" && category.Type == models.CategoryUniversalProfile {
		if err := s.checkUPSignature(ctx, wallet, req.Message, req.Signature); err != nil {
			return nil, err
		}
	}

	result, err := s.evaluator.EvaluateCategory(ctx, category, wallet)
	if err != nil {
		telemetry.RecordExternalAPIError(span, err, chain.IsUnavailable(err))
		return nil, err
	}
	telemetry.RecordVerificationResult(span, result.Verified, result.FailedChecks())

	elapsed := time.Since(started).Milliseconds()
	if err := s.recordAttempt(lock.ID, result.Verified, elapsed); err != nil {
		return nil, err
	}

	out := &VerifyResult{Verified: result.Verified, Category: result}
	if !result.Verified {
		return out, nil
	}

	pv, err := s.upsertPreVerification(userID, lock.ID, category.Type, wallet, result, duration)
	if err != nil {
		return nil, err
	}
	out.PreVerification = pv
	return out, nil
}

func (s *Service) checkUPSignature(ctx context.Context, wallet, message, signature string) error {
	client, err := s.evaluator.ClientFor(models.CategoryUniversalProfile)
	if err != nil {
		return err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return ErrMalformedSignature
	}

	ok, err := client.ValidSignature(ctx, wallet, chain.PersonalMessageHash(message), sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureRejected
	}
	return nil
}

func (s *Service) upsertPreVerification(userID string, lockID int64, categoryType, wallet string, result *CategoryResult, duration time.Duration) (*models.PreVerification, error) {
	if duration <= 0 {
		duration = models.DefaultVerificationDuration
	}

	now := time.Now()
	data := map[string]interface{}{
		"fulfillment": result.Fulfillment,
		"checks":      result.Checks,
	}

	row := models.PreVerification{
		UserID:           userID,
		LockID:           lockID,
		CategoryType:     categoryType,
		WalletAddress:    wallet,
		VerificationData: data,
		Status:           models.VerificationStatusVerified,
		VerifiedAt:       now,
		ExpiresAt:        now.Add(duration),
	}

	err := database.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "lock_id"}, {Name: "category_type"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"wallet_address":    wallet,
			"verification_data": row.VerificationData,
			"status":            models.VerificationStatusVerified,
			"verified_at":       now,
			"expires_at":        row.ExpiresAt,
			"updated_at":        now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert pre-verification: %w", err)
	}

	var stored models.PreVerification
	err = database.DB.
		Where("user_id = ? AND lock_id = ? AND category_type = ?", userID, lockID, categoryType).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// statsSmoothing weighs one verification attempt against the lock's
// running stats. usage_count stays untouched here; it counts boards and
// posts referencing the lock, not attempts.
const statsSmoothing = 0.1

// recordAttempt folds one verification attempt into the lock's cached
// stats as an exponential moving average, one SQL statement.
func (s *Service) recordAttempt(lockID int64, verified bool, elapsedMs int64) error {
	outcome := 0.0
	if verified {
		outcome = 1.0
	}
	return database.DB.Model(&models.Lock{}).
		Where("id = ?", lockID).
		Updates(map[string]interface{}{
			"success_rate":             gorm.Expr("success_rate + ? * (? - success_rate)", statsSmoothing, outcome),
			"avg_verification_time_ms": gorm.Expr("CAST(avg_verification_time_ms + ? * (? - avg_verification_time_ms) AS BIGINT)", statsSmoothing, elapsedMs),
		}).Error
}

// LockStatus is the verification state of one lock for one user.
type LockStatus struct {
	LockID    int64                    `json:"lock_id"`
	Verified  bool                     `json:"verified"`
	ExpiresAt *time.Time               `json:"expires_at,omitempty"`
	Records   []models.PreVerification `json:"records,omitempty"`
}

// Status reports, for each lock ID, whether the user holds a live
// pre-verification and when it lapses.
func (s *Service) Status(userID string, lockIDs []int64) ([]LockStatus, error) {
	out := make([]LockStatus, 0, len(lockIDs))
	if len(lockIDs) == 0 {
		return out, nil
	}

	var rows []models.PreVerification
	err := database.DB.
		Where("user_id = ? AND lock_id IN ? AND status = ? AND expires_at > ?",
			userID, lockIDs, models.VerificationStatusVerified, time.Now()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load verification status: %w", err)
	}

	byLock := make(map[int64][]models.PreVerification)
	for _, row := range rows {
		byLock[row.LockID] = append(byLock[row.LockID], row)
	}

	for _, lockID := range lockIDs {
		status := LockStatus{LockID: lockID}
		if records, ok := byLock[lockID]; ok {
			status.Verified = true
			status.Records = records
			earliest := records[0].ExpiresAt
			for _, r := range records[1:] {
				if r.ExpiresAt.Before(earliest) {
					earliest = r.ExpiresAt
				}
			}
			status.ExpiresAt = &earliest
		}
		out = append(out, status)
	}
	return out, nil
}

// HasAccess reports whether the user's live pre-verifications satisfy
// a lock set under the given fulfillment mode.
func (s *Service) HasAccess(userID string, lockIDs []int64, fulfillment string) (bool, error) {
	if len(lockIDs) == 0 {
		return true, nil
	}

	var verified int64
	err := database.DB.Model(&models.PreVerification{}).
		Where("user_id = ? AND lock_id IN ? AND status = ? AND expires_at > ?",
			userID, lockIDs, models.VerificationStatusVerified, time.Now()).
		Distinct("lock_id").
		Count(&verified).Error
	if err != nil {
		return false, fmt.Errorf("count verified locks: %w", err)
	}

	if fulfillment == models.FulfillmentAll {
		return verified == int64(len(lockIDs)), nil
	}
	return verified > 0, nil
}

// ExpireStale flips verified rows past their expiry to expired and
// returns how many were touched. Deleting old rows outright is left to
// the retention sweep.
func (s *Service) ExpireStale() (int64, error) {
	res := database.DB.Model(&models.PreVerification{}).
		Where("status = ? AND expires_at <= ?", models.VerificationStatusVerified, time.Now()).
		Update("status", models.VerificationStatusExpired)
	return res.RowsAffected, res.Error
}

// PruneExpired deletes expired rows older than the retention window.
func (s *Service) PruneExpired(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res := database.DB.
		Where("status = ? AND expires_at < ?", models.VerificationStatusExpired, cutoff).
		Delete(&models.PreVerification{})
	return res.RowsAffected, res.Error
}

// ResolveDuration picks the pre-verification lifetime for a lock in an
// optional board context: board override first, then the lock's own
// setting, then the global default.
func ResolveDuration(boardGating *models.LockGating, lock *models.Lock) time.Duration {
	if boardGating != nil && boardGating.VerificationDuration > 0 {
		return time.Duration(boardGating.VerificationDuration) * time.Hour
	}
	if lock.GatingConfig != nil {
		if d := lock.GatingConfig.Duration(); d > 0 {
			return d
		}
	}
	return models.DefaultVerificationDuration
}
