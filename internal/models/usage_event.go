package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageEvent is one billed action. Rows are append-only: they are never
// updated and only removed by account-level cascade.
type UsageEvent struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time      `gorm:"precision:3;index" json:"created_at"` // Millisecond precision
	UserID         uint           `gorm:"index;not null" json:"user_id"`
	Kind           string         `gorm:"type:varchar(50);not null" json:"kind"` // e.g. "analyze", "retry", "ocr"
	SubjectLabel   string         `gorm:"type:varchar(255)" json:"subject_label"`
	DebitedCredits int64          `gorm:"not null" json:"debited_credits"`
	CostDetail     datatypes.JSON `gorm:"type:jsonb" json:"cost_detail,omitempty" swaggertype:"object"`
}

// TableName overrides the table name
func (UsageEvent) TableName() string {
	return "usage_events"
}
