// Package referral is the orchestration core of the bonus program: it
// validates inbound referral events, advances pair lifecycle state and
// appends to the bonus ledger. Status moves forward only, and each
// (referral, event type) pair produces at most one ledger entry no matter
// how often or how concurrently an event is replayed.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"aura-bot/internal/models"
	"aura-bot/internal/refcode"
	"aura-bot/internal/subscription"
)

// Notifier delivers user-facing confirmations. Delivery is best-effort and
// happens only after the surrounding transaction has committed.
type Notifier interface {
	Notify(ctx context.Context, userID uint, text string) error
}

// NopNotifier drops every notification; used when no chat transport is wired.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, uint, string) error { return nil }

type Engine struct {
	DB            *gorm.DB
	Codec         *refcode.Codec
	JoinBonusDays int
	PaidBonusDays int
	Notifier      Notifier
}

func NewEngine(db *gorm.DB, codec *refcode.Codec, joinDays, paidDays int, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		DB:            db,
		Codec:         codec,
		JoinBonusDays: joinDays,
		PaidBonusDays: paidDays,
		Notifier:      notifier,
	}
}

// ResolveCode decodes a public referral code into the inviter's user id.
// Malformed codes and codes pointing at no known user both come back as
// refcode.ErrInvalidCode; the caller treats that as a normal outcome.
func (e *Engine) ResolveCode(code string) (uint, error) {
	id, err := e.Codec.Decode(code)
	if err != nil {
		return 0, refcode.ErrInvalidCode
	}
	var count int64
	if err := e.DB.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to look up referrer: %w", err)
	}
	if count == 0 {
		return 0, refcode.ErrInvalidCode
	}
	return id, nil
}

// RecordInvalidVisit audits a visit with a non-resolvable code. No referral
// row is created: there is no real referrer to attach it to.
func (e *Engine) RecordInvalidVisit(referredID uint, code string) {
	e.logEvent(referredID, "referral_invalid", map[string]string{"code": code})
}

// RecordVisit upserts the (referrer, referred) pair. freshAccount marks that
// this visit caused the referred user's account to be created; it decides
// between joined and clicked. Self-referrals are recorded terminally as self.
// The returned status is the row's status after the forward-only rule, which
// may be the pre-existing one when the update is a no-op.
func (e *Engine) RecordVisit(ctx context.Context, referrerID, referredID uint, code string, freshAccount bool) (string, error) {
	status := models.RefStatusClicked
	if referrerID == referredID {
		status = models.RefStatusSelf
	} else if freshAccount {
		status = models.RefStatusJoined
	}

	final, err := e.upsertStatus(ctx, referrerID, referredID, code, status, "")
	if err != nil {
		return "", err
	}
	e.logEvent(referredID, "referral_"+final, map[string]string{
		"referrer": fmt.Sprint(referrerID),
		"code":     code,
	})
	return final, nil
}

// upsertStatus applies the forward-only transition rule for one pair. A
// concurrent insert of the same pair is detected through the unique pair
// index and retried as an update; a concurrent status change makes the
// conditional update a no-op.
func (e *Engine) upsertStatus(ctx context.Context, referrerID, referredID uint, code, status, ip string) (string, error) {
	final := status
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Referral
		err := tx.Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := models.Referral{
				Code:           code,
				ReferrerID:     referrerID,
				ReferredID:     &referredID,
				Status:         status,
				RegistrationIP: ip,
			}
			if createErr := tx.Create(&row).Error; createErr != nil {
				if errors.Is(createErr, gorm.ErrDuplicatedKey) {
					// Lost the insert race; fall through to the update path.
					if err := tx.Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).First(&existing).Error; err != nil {
						return err
					}
				} else {
					return createErr
				}
			} else {
				return nil
			}
		} else if err != nil {
			return err
		}

		if models.StatusOrder[status] <= models.StatusOrder[existing.Status] {
			final = existing.Status
			return nil
		}
		res := tx.Model(&models.Referral{}).
			Where("id = ? AND status = ?", existing.ID, existing.Status).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Someone advanced the row first; their progress stands.
			final = existing.Status
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to record referral: %w", err)
	}
	return final, nil
}

// GrantJoinBonus credits the referred user for a fresh joined signup. Exactly
// one join event per referral can ever exist; a duplicate call observes the
// existing ledger row and reports granted=false.
func (e *Engine) GrantJoinBonus(ctx context.Context, referredID, referrerID uint) (bool, error) {
	var ref models.Referral
	err := e.DB.WithContext(ctx).
		Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).
		First(&ref).Error
	if err != nil {
		return false, fmt.Errorf("failed to find referral for join bonus: %w", err)
	}
	if ref.Status == models.RefStatusSelf || ref.Status == models.RefStatusInvalid {
		return false, nil
	}

	granted, err := e.appendBonus(ctx, referredID, ref.ID, models.BonusTypeJoin, e.JoinBonusDays,
		map[string]string{"referrer": fmt.Sprint(referrerID)})
	if err != nil || !granted {
		return granted, err
	}

	e.logEvent(referredID, "bonus_granted", map[string]string{
		"type": models.BonusTypeJoin,
		"days": fmt.Sprint(e.JoinBonusDays),
	})
	e.notify(ctx, referrerID, fmt.Sprintf(
		"📣 По вашей ссылке зарегистрировался новый пользователь. После его первой оплаты вам придёт +%d дней.",
		e.PaidBonusDays))
	return true, nil
}

// ActivatePaidBonus reacts to a verified payment by the referred user: the
// most recent clicked/joined referral flips to paid and the referrer is
// credited, both inside one transaction. Paying without a qualifying referral
// is normal and returns awarded=false with no error. Replays and concurrent
// duplicates settle on exactly one paid event.
func (e *Engine) ActivatePaidBonus(ctx context.Context, payerID uint) (bool, *uint, error) {
	var referrerID *uint
	awarded := false

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ref models.Referral
		err := tx.Where("referred_id = ? AND status IN ?", payerID,
			[]string{models.RefStatusClicked, models.RefStatusJoined}).
			Order("created_at DESC, id DESC").
			First(&ref).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		// The status flip is the commit gate: whoever wins this conditional
		// update owns the ledger insert that follows.
		res := tx.Model(&models.Referral{}).
			Where("id = ? AND status IN ?", ref.ID,
				[]string{models.RefStatusClicked, models.RefStatusJoined}).
			Update("status", models.RefStatusPaid)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := e.appendBonusTx(tx, ref.ReferrerID, ref.ID, models.BonusTypePaid, e.PaidBonusDays,
			map[string]string{"from": fmt.Sprint(payerID)}); err != nil {
			return err
		}
		referrerID = &ref.ReferrerID
		awarded = true
		return nil
	})
	if err != nil {
		return false, nil, fmt.Errorf("failed to activate paid bonus: %w", err)
	}

	if awarded {
		e.logEvent(*referrerID, "bonus_granted", map[string]string{
			"type": models.BonusTypePaid,
			"days": fmt.Sprint(e.PaidBonusDays),
			"from": fmt.Sprint(payerID),
		})
		e.notify(ctx, *referrerID, fmt.Sprintf(
			"🎉 Друг совершил оплату — +%d дней к вашему доступу (бонус реферала).", e.PaidBonusDays))
	}
	return awarded, referrerID, nil
}

// appendBonus runs appendBonusTx in its own transaction and converts a
// duplicate into granted=false.
func (e *Engine) appendBonus(ctx context.Context, userID, referralID uint, bonusType string, days int, payload map[string]string) (bool, error) {
	granted := true
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := e.appendBonusTx(tx, userID, referralID, bonusType, days, payload)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			granted = false
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to append bonus: %w", err)
	}
	return granted, nil
}

// appendBonusTx writes the ledger entry and extends the recipient's stored
// expiry in the caller's transaction. A duplicate (referral, type) insert
// surfaces as gorm.ErrDuplicatedKey and rolls the transaction back.
func (e *Engine) appendBonusTx(tx *gorm.DB, userID, referralID uint, bonusType string, days int, payload map[string]string) error {
	now := time.Now()
	event := models.BonusEvent{
		UserID:      userID,
		ReferralID:  &referralID,
		Type:        bonusType,
		Days:        days,
		Activated:   true,
		Payload:     encodePayload(payload),
		ActivatedAt: &now,
	}
	if err := tx.Create(&event).Error; err != nil {
		return err
	}

	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		return err
	}
	newEnd := subscription.ExtendExpiry(user.SubscriptionEnd, now, days)
	return tx.Model(&user).Update("subscription_end", newEnd).Error
}

// Stats aggregates a referrer's funnel for display.
type Stats struct {
	Clicked int64
	Joined  int64
	Paid    int64
}

func (e *Engine) StatsFor(referrerID uint) (Stats, error) {
	var s Stats
	q := e.DB.Model(&models.Referral{}).Where("referrer_id = ?", referrerID)

	if err := q.Session(&gorm.Session{}).Where("status = ?", models.RefStatusClicked).Count(&s.Clicked).Error; err != nil {
		return s, err
	}
	if err := q.Session(&gorm.Session{}).Where("status IN ?",
		[]string{models.RefStatusJoined, models.RefStatusPaid}).Count(&s.Joined).Error; err != nil {
		return s, err
	}
	if err := q.Session(&gorm.Session{}).Where("status = ?", models.RefStatusPaid).Count(&s.Paid).Error; err != nil {
		return s, err
	}
	return s, nil
}

// RegistrationsFromIP counts referrals recorded for the referrer from the
// given source address; the HTTP register endpoint caps this.
func (e *Engine) RegistrationsFromIP(referrerID uint, ip string) (int64, error) {
	var count int64
	err := e.DB.Model(&models.Referral{}).
		Where("referrer_id = ? AND registration_ip = ?", referrerID, ip).
		Count(&count).Error
	return count, err
}

// RecordRegistration is the HTTP-transport entry: the pair is created
// directly as joined (registration always makes a fresh account) with the
// source IP kept for the anti-abuse cap.
func (e *Engine) RecordRegistration(ctx context.Context, referrerID, referredID uint, code, ip string) (string, error) {
	return e.upsertStatus(ctx, referrerID, referredID, code, models.RefStatusJoined, ip)
}

func (e *Engine) notify(ctx context.Context, userID uint, text string) {
	if err := e.Notifier.Notify(ctx, userID, text); err != nil {
		log.Printf("Failed to notify user %d: %v", userID, err)
	}
}
