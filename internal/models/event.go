package models

import (
	"time"
)

// EventLog is the audit trail of user-visible actions (referral transitions,
// bonus grants, payments). Payloads are PII-redacted before storage.
type EventLog struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index"`
	Event     string `gorm:"size:64;not null"`
	Payload   string `gorm:"type:text"`
	CreatedAt time.Time
}

type ScaleResult struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	Scale     string `gorm:"size:16;not null"` // PHQ9 | GAD7
	Score     int    `gorm:"not null"`
	CreatedAt time.Time
}
