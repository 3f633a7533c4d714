package models

import (
	"time"
)

// Bonus event types recorded in the ledger.
const (
	BonusTypeJoin  = "ref_join"
	BonusTypePaid  = "ref_paid"
	BonusTypePromo = "promo"
)

// BonusEvent is an immutable ledger entry. The unique index over
// (referral_id, type) enforces at most one event per referral and cause;
// promotional grants carry no referral and are exempt.
type BonusEvent struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"not null;index"`
	ReferralID  *uint  `gorm:"uniqueIndex:idx_bonus_referral_type"`
	Type        string `gorm:"size:32;not null;uniqueIndex:idx_bonus_referral_type"`
	Days        int    `gorm:"not null"`
	Activated   bool   `gorm:"default:true"`
	Payload     string `gorm:"type:text"`
	CreatedAt   time.Time
	ActivatedAt *time.Time
}
