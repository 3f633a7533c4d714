package models

import (
	"time"
)

// Payment records one settled plan purchase. YooKassaID is set for provider
// webhooks and acts as the replay fence; API-driven subscriptions carry none.
type Payment struct {
	ID         uint    `gorm:"primaryKey"`
	UserID     uint    `gorm:"not null;index"`
	Amount     float64 `gorm:"not null"`
	PlanDays   int     `gorm:"not null"`
	Status     string  `gorm:"default:'pending'"`
	YooKassaID *string `gorm:"size:255;uniqueIndex"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
