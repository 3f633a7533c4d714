package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"aura-bot/internal/models"
	"aura-bot/internal/referral"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Checker watches subscription expiries and nudges users over the chat
// transport. Redis keys dedupe the 24h reminder across cycles and restarts.
type Checker struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Notifier referral.Notifier
}

func NewChecker(db *gorm.DB, rdb *redis.Client, notifier referral.Notifier) *Checker {
	if notifier == nil {
		notifier = referral.NopNotifier{}
	}
	return &Checker{DB: db, Redis: rdb, Notifier: notifier}
}

func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	log.Println("Background subscription worker started")

	// Run once at start
	c.checkSubscriptions(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Background subscription worker stopped")
			return
		case <-ticker.C:
			c.checkSubscriptions(ctx)
		}
	}
}

func (c *Checker) checkSubscriptions(ctx context.Context) {
	now := time.Now()

	log.Println("Running subscription check cycle...")

	// 1. Notify 24h before expiry
	// Expiring in [23, 25] hours
	start := now.Add(23 * time.Hour)
	end := now.Add(25 * time.Hour)

	var expiringSoon []models.User
	if err := c.DB.Where("subscription_end BETWEEN ? AND ?", start, end).Find(&expiringSoon).Error; err != nil {
		log.Printf("Error querying expiring subscriptions: %v", err)
	}

	for _, user := range expiringSoon {
		key := fmt.Sprintf("notified_24h_%d", user.ID)
		exists, _ := c.Redis.Exists(ctx, key).Result()
		if exists != 0 {
			continue
		}
		err := c.Notifier.Notify(ctx, user.ID,
			"⚠️ Ваша подписка истекает через сутки! Продлите её, чтобы не потерять доступ к сессиям.")
		if err == nil {
			c.Redis.Set(ctx, key, "true", 48*time.Hour)
			log.Printf("Sent 24h notification to user %d", user.ID)
		} else {
			log.Printf("Failed to send 24h notification to %d: %v", user.ID, err)
		}
	}

	// 2. Handle expired subscriptions
	var expired []models.User
	if err := c.DB.Where("subscription_end < ? AND status = ?", now, "active").Find(&expired).Error; err != nil {
		log.Printf("Error querying expired subscriptions: %v", err)
	}

	for _, user := range expired {
		log.Printf("Marking user %d expired (subscription end: %s)", user.ID, user.SubscriptionEnd)

		if err := c.DB.Model(&user).Update("status", "expired").Error; err != nil {
			log.Printf("Failed to update user status in DB for %d: %v", user.ID, err)
			continue
		}

		err := c.Notifier.Notify(ctx, user.ID,
			"❌ Ваша подписка истекла. Продлить её можно в разделе «Подписка».")
		if err != nil {
			log.Printf("Failed to send expiration notification to %d: %v", user.ID, err)
		}
	}
}
