package models

import "time"

// Purchase is one applied credit top-up. ProviderSessionID carries a unique
// index: it is the idempotency anchor that makes webhook replay a no-op.
type Purchase struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	UserID            uint      `gorm:"index;not null" json:"user_id"`
	PackageID         string    `gorm:"type:varchar(64)" json:"package_id"`
	CreditsGranted    int64     `gorm:"not null" json:"credits_granted"`
	AmountMinorUnits  int64     `gorm:"not null;default:0" json:"amount_minor_units"`
	ProviderSessionID string    `gorm:"uniqueIndex;type:varchar(128);not null" json:"provider_session_id"`
}

// TableName overrides the table name
func (Purchase) TableName() string {
	return "purchases"
}
