package models

import (
	"time"
)

// JournalEntry holds either a mood from a check-in or a free-text note
// captured inside the timed journal window.
type JournalEntry struct {
	ID        uint    `gorm:"primaryKey"`
	UserID    uint    `gorm:"not null;index"`
	Mood      *string `gorm:"size:64"`
	Text      *string `gorm:"type:text"`
	CreatedAt time.Time
}

type ConversationMessage struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	Role      string `gorm:"size:16;not null"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}
