package models

import (
	"time"
)

// User covers both the chat audience (TelegramID set) and portal accounts
// registered over the HTTP API (Email set). Either identity may be missing,
// never both.
type User struct {
	ID           uint       `gorm:"primaryKey"`
	TelegramID   *int64     `gorm:"uniqueIndex"`
	Username     string     `gorm:"size:255"`
	Email        *string    `gorm:"uniqueIndex;size:255"`
	Name         string     `gorm:"size:255"`
	PasswordHash string     `gorm:"size:255"`
	Persona      string     `gorm:"size:64;default:'pro_psychologist'"`
	Status       string     `gorm:"size:32;default:'active'"`
	ReferredByID *uint      `gorm:"index"`
	SubscriptionEnd *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
