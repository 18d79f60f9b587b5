package models

import "time"

// User holds the credit quota counters. QuotaUsed is mutated only by the
// usage ledger debit path; QuotaTotal only by payment reconciliation and
// admin grants.
type User struct {
	ID         uint `gorm:"primarykey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Username   string `gorm:"uniqueIndex;not null"`
	Password   string `gorm:"not null"`
	Role       string `gorm:"not null;default:'user'"`
	QuotaTotal int64  `gorm:"not null;default:0"`
	QuotaUsed  int64  `gorm:"not null;default:0"`
	Version    int    `gorm:"default:1"`
}

// RemainingCredits is the purchasing power left on the account. Concurrent
// in-flight debits can briefly overshoot, so this may be negative.
func (u *User) RemainingCredits() int64 {
	return u.QuotaTotal - u.QuotaUsed
}
