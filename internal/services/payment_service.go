package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"labelens-backend/config"
	"labelens-backend/internal/database"
	"labelens-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSignatureInvalid = errors.New("invalid webhook signature")

// WebhookOutcome classifies a processed delivery. Ignored is not an error:
// irrelevant event types, unknown users and malformed payloads are
// acknowledged so the provider stops redelivering, and operators replay from
// provider-side logs if needed.
type WebhookOutcome string

const (
	WebhookApplied WebhookOutcome = "applied"
	WebhookIgnored WebhookOutcome = "ignored"
)

const checkoutCompletedEvent = "checkout.session.completed"

// checkoutEvent is the provider's webhook payload for a completed purchase.
type checkoutEvent struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	UserID           uint   `json:"user_id"`
	PackageID        string `json:"package_id"`
	Credits          int64  `json:"credits"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
}

// VerifyWebhookSignature checks the provider signature over the RAW request
// bytes. The header carries `t=<unix>,v1=<hex>` where v1 is
// HMAC-SHA256(secret, "<t>.<payload>"); the timestamp must fall within the
// tolerance window. Verifying re-serialized JSON instead of the raw bytes is
// the classic bug this function exists to prevent, so callers must pass the
// body exactly as received.
func VerifyWebhookSignature(payload []byte, header, secret string, tolerance time.Duration) error {
	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signature = v
		}
	}
	if timestamp == "" || signature == "" {
		return ErrSignatureInvalid
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	if tolerance > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrSignatureInvalid
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureInvalid
	}
	if !hmac.Equal(provided, expected) {
		return ErrSignatureInvalid
	}
	return nil
}

// ApplyPaymentWebhook verifies, parses and applies one webhook delivery.
// The provider delivers at least once; replays of an already-applied session
// return WebhookApplied without re-crediting.
func ApplyPaymentWebhook(payload []byte, signatureHeader string) (WebhookOutcome, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return WebhookIgnored, err
	}

	if err := VerifyWebhookSignature(payload, signatureHeader, cfg.WebhookSecret, cfg.WebhookTolerance); err != nil {
		zap.L().Warn("webhook signature verification failed",
			zap.Int("payload_bytes", len(payload)))
		return WebhookIgnored, ErrSignatureInvalid
	}

	var event checkoutEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		zap.L().Warn("webhook payload is not valid JSON", zap.Error(err))
		return WebhookIgnored, nil
	}

	if event.Type != checkoutCompletedEvent || event.SessionID == "" || event.Credits <= 0 {
		return WebhookIgnored, nil
	}

	granted, err := GrantCredits(event.UserID, event.PackageID, event.Credits, event.AmountMinorUnits, event.SessionID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			zap.L().Warn("webhook references unknown user",
				zap.Uint("user_id", event.UserID),
				zap.String("session_id", event.SessionID))
			return WebhookIgnored, nil
		}
		return WebhookIgnored, err
	}

	if !granted {
		zap.L().Info("webhook replay ignored",
			zap.String("session_id", event.SessionID))
	}
	return WebhookApplied, nil
}

// GrantCredits raises a user's quota_total and records the purchase,
// atomically. The purchase insert uses ON CONFLICT DO NOTHING on the unique
// provider session id: a conflicting insert means the grant was already
// applied, and the function returns granted=false with no mutation.
func GrantCredits(userID uint, packageID string, credits, amountMinorUnits int64, providerSessionID string) (bool, error) {
	if credits <= 0 {
		return false, fmt.Errorf("credits must be positive, got %d", credits)
	}

	granted := false
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		purchase := models.Purchase{
			CreatedAt:         time.Now(),
			UserID:            userID,
			PackageID:         packageID,
			CreditsGranted:    credits,
			AmountMinorUnits:  amountMinorUnits,
			ProviderSessionID: providerSessionID,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_session_id"}},
			DoNothing: true,
		}).Create(&purchase)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Duplicate delivery; leave the ledger untouched.
			return nil
		}

		update := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("quota_total", gorm.Expr("quota_total + ?", credits))
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			// Rolls back the purchase row as well.
			return ErrUserNotFound
		}

		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if granted {
		InvalidateUserCache(userID)
		zap.L().Info("credits granted",
			zap.Uint("user_id", userID),
			zap.String("package_id", packageID),
			zap.Int64("credits", credits),
			zap.String("session_id", providerSessionID))
	}
	return granted, nil
}

// GrantCreditsManually is the admin top-up path. It synthesizes a provider
// session id so the grant flows through the same append-only purchase record.
func GrantCreditsManually(userID uint, credits int64, operator string) (bool, error) {
	sessionID := "admin-" + strings.ReplaceAll(uuid.New().String(), "-", "")
	zap.L().Info("manual credit grant",
		zap.Uint("user_id", userID),
		zap.Int64("credits", credits),
		zap.String("operator", operator))
	return GrantCredits(userID, "manual", credits, 0, sessionID)
}
