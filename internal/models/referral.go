package models

import (
	"time"
)

// Referral lifecycle statuses, in increasing order of commitment.
// invalid and self are terminal sinks.
const (
	RefStatusInvalid = "invalid"
	RefStatusSelf    = "self"
	RefStatusClicked = "clicked"
	RefStatusJoined  = "joined"
	RefStatusPaid    = "paid"
)

// StatusOrder maps a referral status to its ordinal. A status update is
// applied only when the new ordinal exceeds the stored one.
var StatusOrder = map[string]int{
	RefStatusInvalid: 0,
	RefStatusSelf:    0,
	RefStatusClicked: 1,
	RefStatusJoined:  2,
	RefStatusPaid:    3,
}

// Referral is one row per (referrer, referred) pair. Re-entry for the same
// pair updates the row, never duplicates it.
type Referral struct {
	ID             uint    `gorm:"primaryKey"`
	Code           string  `gorm:"size:32;index"`
	ReferrerID     uint    `gorm:"not null;uniqueIndex:idx_referral_pair"`
	ReferredID     *uint   `gorm:"uniqueIndex:idx_referral_pair"`
	Status         string  `gorm:"size:16;not null"`
	RegistrationIP string  `gorm:"size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
