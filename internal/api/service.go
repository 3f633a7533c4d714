// Package api exposes the referral program over HTTP: the portal endpoints
// (registration, subscription, referral stats) and the payment-provider
// webhook. It is a thin transport over the referral engine; all lifecycle
// and ledger rules live there.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"aura-bot/internal/models"
	"aura-bot/internal/refcode"
	"aura-bot/internal/referral"
	"aura-bot/internal/subscription"
)

var (
	ErrEmailTaken   = errors.New("user with this email already exists")
	ErrUnknownCode  = errors.New("referral code not found")
	ErrIPLimit      = errors.New("registration limit for this IP reached")
	ErrUserNotFound = errors.New("user not found")
)

type Service struct {
	DB                    *gorm.DB
	Engine                *referral.Engine
	Projection            *subscription.Projection
	ReferralBaseURL       string
	MaxRegistrationsPerIP int
}

func NewService(db *gorm.DB, engine *referral.Engine, baseURL string, maxPerIP int) *Service {
	return &Service{
		DB:                    db,
		Engine:                engine,
		Projection:            subscription.NewProjection(db),
		ReferralBaseURL:       baseURL,
		MaxRegistrationsPerIP: maxPerIP,
	}
}

// GenerateReferralLink returns the user's code and full invite link. The
// codec is deterministic, so repeated calls are idempotent by construction.
func (s *Service) GenerateReferralLink(userID uint) (string, string, error) {
	var count int64
	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return "", "", err
	}
	if count == 0 {
		return "", "", ErrUserNotFound
	}
	code := s.Engine.Codec.Encode(userID)
	return code, s.ReferralBaseURL + code, nil
}

type RegisterResult struct {
	UserID      uint
	AwardedDays int
	ReferrerID  *uint
}

// Register creates a portal account and, when a referral code is attached,
// records the joined pair and credits the join bonus to the new user. The
// per-referrer registration cap guards against one referrer farming signups
// from a single address.
func (s *Service) Register(ctx context.Context, email, name, password, referralCode, requestIP string) (*RegisterResult, error) {
	var existing int64
	if err := s.DB.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	var referrerID *uint
	if referralCode != "" {
		id, err := s.Engine.ResolveCode(referralCode)
		if err != nil {
			if errors.Is(err, refcode.ErrInvalidCode) {
				return nil, ErrUnknownCode
			}
			return nil, err
		}

		count, err := s.Engine.RegistrationsFromIP(id, requestIP)
		if err != nil {
			return nil, err
		}
		if count >= int64(s.MaxRegistrationsPerIP) {
			return nil, ErrIPLimit
		}
		referrerID = &id
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Email:        &email,
		Name:         name,
		PasswordHash: string(hash),
		Status:       "active",
		ReferredByID: referrerID,
	}
	if err := s.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	result := &RegisterResult{UserID: user.ID, ReferrerID: referrerID}
	if referrerID == nil {
		return result, nil
	}

	if _, err := s.Engine.RecordRegistration(ctx, *referrerID, user.ID, referralCode, requestIP); err != nil {
		return nil, err
	}
	granted, err := s.Engine.GrantJoinBonus(ctx, user.ID, *referrerID)
	if err != nil {
		return nil, err
	}
	if granted {
		result.AwardedDays = s.Engine.JoinBonusDays
	}
	return result, nil
}

type SubscribeResult struct {
	UserID          uint
	SubscriptionEnd time.Time
	ReferrerAwarded bool
	ReferrerID      *uint
}

// Subscribe applies a paid plan: the payer's expiry is extended by plan_days
// and the referrer, if any qualifying referral exists, is credited exactly
// once via the engine.
func (s *Service) Subscribe(ctx context.Context, userID uint, planDays int) (*SubscribeResult, error) {
	var user models.User
	if err := s.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	now := time.Now()
	newEnd := subscription.ExtendExpiry(user.SubscriptionEnd, now, planDays)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("subscription_end", newEnd).Error; err != nil {
			return err
		}
		return tx.Create(&models.Payment{
			UserID:   user.ID,
			PlanDays: planDays,
			Status:   "succeeded",
		}).Error
	})
	if err != nil {
		return nil, err
	}

	awarded, referrerID, err := s.Engine.ActivatePaidBonus(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &SubscribeResult{
		UserID:          user.ID,
		SubscriptionEnd: newEnd,
		ReferrerAwarded: awarded,
		ReferrerID:      referrerID,
	}, nil
}

type ReferralInfo struct {
	ReferredID       uint       `json:"referred_id"`
	Name             string     `json:"name"`
	Status           string     `json:"status"`
	RegisteredAt     time.Time  `json:"registered_at"`
	JoinBonusDays    int        `json:"join_bonus_days"`
	PaidBonusDays    int        `json:"paid_bonus_days"`
	PaidBonusAwarded bool       `json:"paid_bonus_awarded"`
}

type MyReferralsResult struct {
	ReferrerID    uint           `json:"referrer_id"`
	TotalClicked  int64          `json:"total_clicked"`
	TotalJoined   int64          `json:"total_joined"`
	TotalPaid     int64          `json:"total_paid"`
	BonusBalance  int            `json:"bonus_balance_days"`
	Referrals     []ReferralInfo `json:"referrals"`
}

// MyReferrals aggregates the referrer's funnel and the bonus detail of every
// pair, reading the ledger through the projection.
func (s *Service) MyReferrals(userID uint) (*MyReferralsResult, error) {
	var count int64
	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrUserNotFound
	}

	stats, err := s.Engine.StatsFor(userID)
	if err != nil {
		return nil, err
	}
	balance, err := s.Projection.Balance(userID)
	if err != nil {
		return nil, err
	}

	var rows []models.Referral
	if err := s.DB.Where("referrer_id = ?", userID).
		Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := &MyReferralsResult{
		ReferrerID:   userID,
		TotalClicked: stats.Clicked,
		TotalJoined:  stats.Joined,
		TotalPaid:    stats.Paid,
		BonusBalance: balance,
		Referrals:    make([]ReferralInfo, 0, len(rows)),
	}

	for _, row := range rows {
		info := ReferralInfo{
			Status:       row.Status,
			RegisteredAt: row.CreatedAt,
		}
		if row.ReferredID != nil {
			info.ReferredID = *row.ReferredID
			var referred models.User
			if err := s.DB.First(&referred, *row.ReferredID).Error; err == nil {
				info.Name = referred.Name
				if info.Name == "" {
					info.Name = referred.Username
				}
			}
		}

		var events []models.BonusEvent
		if err := s.DB.Where("referral_id = ?", row.ID).Find(&events).Error; err != nil {
			return nil, err
		}
		for _, ev := range events {
			switch ev.Type {
			case models.BonusTypeJoin:
				info.JoinBonusDays = ev.Days
			case models.BonusTypePaid:
				info.PaidBonusDays = ev.Days
				info.PaidBonusAwarded = true
			}
		}
		result.Referrals = append(result.Referrals, info)
	}
	return result, nil
}
