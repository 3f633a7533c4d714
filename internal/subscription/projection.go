// Package subscription derives bonus-day balances and subscription expiry
// from the bonus ledger. Everything here is recomputable from the ledger, so
// stored expiry can be reconciled at any time.
package subscription

import (
	"time"

	"gorm.io/gorm"

	"aura-bot/internal/models"
)

type Projection struct {
	DB *gorm.DB
}

func NewProjection(db *gorm.DB) *Projection {
	return &Projection{DB: db}
}

// Balance is the sum of activated bonus days for the user.
func (p *Projection) Balance(userID uint) (int, error) {
	var total int
	err := p.DB.Model(&models.BonusEvent{}).
		Where("user_id = ? AND activated = ?", userID, true).
		Select("COALESCE(SUM(days), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ExtendExpiry applies one grant: an expiry still in the future is extended,
// otherwise the grant counts from now.
func ExtendExpiry(current *time.Time, now time.Time, days int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(days) * 24 * time.Hour)
}

// ReplayExpiry recomputes expiry by folding ExtendExpiry over the events in
// creation order, using each event's own timestamp as "now". The result must
// match the incrementally maintained expiry.
func ReplayExpiry(events []models.BonusEvent) *time.Time {
	var expiry *time.Time
	for _, ev := range events {
		if !ev.Activated {
			continue
		}
		next := ExtendExpiry(expiry, ev.CreatedAt, ev.Days)
		expiry = &next
	}
	return expiry
}

// ReplayBalance recomputes the balance from an event slice; the database
// aggregate in Balance must agree with it.
func ReplayBalance(events []models.BonusEvent) int {
	total := 0
	for _, ev := range events {
		if ev.Activated {
			total += ev.Days
		}
	}
	return total
}

// Events loads the full ledger for a user in creation order.
func (p *Projection) Events(userID uint) ([]models.BonusEvent, error) {
	var events []models.BonusEvent
	err := p.DB.Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
