package services

import (
	"encoding/json"
	"errors"
	"time"

	"labelens-backend/config"
	"labelens-backend/internal/database"
	"labelens-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrQuotaExceeded = errors.New("credit quota exceeded")

// DebitRequest describes one billed unit of work. Usage is nil for actions
// that carry no token metering.
type DebitRequest struct {
	Kind           string
	SubjectLabel   string
	RequestedCount int64
	Usage          *TokenUsage
}

// CheckedDebit charges a user for completed work: it appends a usage event
// and raises quota_used by the converted credit amount, atomically.
//
// The quota check and the counter increment are a single conditional UPDATE
// (`... WHERE quota_used + debit <= quota_total`), so two concurrent debits
// cannot both pass a stale comparison. A zero-rows-affected result is mapped
// to ErrQuotaExceeded or ErrUserNotFound; neither outcome mutates anything.
//
// Callers invoke this only after the billed work has produced a usable
// result; there is no reserve-then-commit step.
func CheckedDebit(userID uint, req DebitRequest) (*models.User, *models.UsageEvent, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	debit, detail := PolicyFromConfig(cfg).Credits(req.RequestedCount, req.Usage)

	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return nil, nil, err
	}

	event := models.UsageEvent{
		CreatedAt:      time.Now(),
		UserID:         userID,
		Kind:           req.Kind,
		SubjectLabel:   req.SubjectLabel,
		DebitedCredits: debit,
		CostDetail:     datatypes.JSON(detailJSON),
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND quota_used + ? <= quota_total", userID, debit).
			UpdateColumn("quota_used", gorm.Expr("quota_used + ?", debit))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrUserNotFound
			}
			return ErrQuotaExceeded
		}

		return tx.Create(&event).Error
	})
	if err != nil {
		return nil, nil, err
	}

	InvalidateUserCache(userID)

	zap.L().Info("quota debited",
		zap.Uint("user_id", userID),
		zap.String("kind", req.Kind),
		zap.Int64("credits", debit))

	// Post-debit snapshot from the source of truth.
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return nil, nil, err
	}
	return &user, &event, nil
}

// QuotaSnapshot reads the current counters directly from the database. The
// orchestrator uses it as an advisory pre-check; the binding check is the
// conditional update inside CheckedDebit. Quota state is never served from a
// cache: staleness here directly causes over-spending.
func QuotaSnapshot(userID uint) (total int64, used int64, err error) {
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, ErrUserNotFound
		}
		return 0, 0, err
	}
	return user.QuotaTotal, user.QuotaUsed, nil
}

// UsageHistory returns a user's usage events newest first. A non-nil before
// timestamp acts as the pagination cursor.
func UsageHistory(userID uint, limit int, before *time.Time) ([]models.UsageEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := database.DB.Model(&models.UsageEvent{}).Where("user_id = ?", userID)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}

	var events []models.UsageEvent
	if err := query.Order("created_at desc").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
