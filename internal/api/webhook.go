package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"aura-bot/internal/models"
	"aura-bot/internal/payment"
	"aura-bot/internal/referral"
	"aura-bot/internal/subscription"
	"aura-bot/internal/utils"
)

// WebhookHandler processes provider callbacks. This is the only trusted
// payment signal: source addresses are checked against the provider CIDR
// allowlist and a replayed notification is detected through the stored
// provider payment id.
type WebhookHandler struct {
	DB         *gorm.DB
	Engine     *referral.Engine
	AllowedIPs []string
}

func NewWebhookHandler(db *gorm.DB, engine *referral.Engine, allowedIPs []string) *WebhookHandler {
	return &WebhookHandler{DB: db, Engine: engine, AllowedIPs: allowedIPs}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	if len(h.AllowedIPs) > 0 && !utils.IsAllowedIP(c.ClientIP(), h.AllowedIPs) {
		log.Printf("Webhook from disallowed IP: %s", c.ClientIP())
		c.Status(http.StatusForbidden)
		return
	}

	var notification payment.WebhookNotification
	if err := c.ShouldBindJSON(&notification); err != nil {
		log.Printf("Failed to decode webhook: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	if notification.Event != "payment.succeeded" {
		log.Printf("Ignored event: %s", notification.Event)
		c.Status(http.StatusOK)
		return
	}

	if err := h.processSuccess(c, notification.Object); err != nil {
		log.Printf("Failed to process payment success: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Status(http.StatusOK)
}

func (h *WebhookHandler) processSuccess(c *gin.Context, obj payment.WebhookObject) error {
	log.Printf("Processing payment success: %s", obj.ID)

	userIDStr, ok := obj.Metadata["user_id"]
	if !ok {
		return fmt.Errorf("metadata missing user_id")
	}
	userID, err := strconv.ParseUint(userIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user_id: %w", err)
	}

	planDays := 30
	if s, ok := obj.Metadata["plan_days"]; ok {
		if days, err := strconv.Atoi(s); err == nil && days > 0 {
			planDays = days
		}
	}
	amount, _ := strconv.ParseFloat(obj.Amount.Value, 64)

	var user models.User
	if err := h.DB.First(&user, uint(userID)).Error; err != nil {
		return fmt.Errorf("failed to find payer: %w", err)
	}

	// The provider payment id is the replay fence: a second delivery of the
	// same notification fails the insert and is acknowledged as processed.
	now := time.Now()
	newEnd := subscription.ExtendExpiry(user.SubscriptionEnd, now, planDays)
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Payment{
			UserID:     user.ID,
			Amount:     amount,
			PlanDays:   planDays,
			Status:     "succeeded",
			YooKassaID: &obj.ID,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&user).Update("subscription_end", newEnd).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		log.Printf("Duplicate webhook for payment %s, already applied", obj.ID)
		return nil
	}
	if err != nil {
		return err
	}

	// Paid conversion for the referral program; duplicates settle inside the
	// engine, so a retried webhook with a new payment id still credits once.
	if _, _, err := h.Engine.ActivatePaidBonus(c.Request.Context(), user.ID); err != nil {
		log.Printf("Failed to activate paid bonus for user %d: %v", user.ID, err)
	}

	_ = h.Engine.Notifier.Notify(c.Request.Context(), user.ID, fmt.Sprintf(
		"✅ Оплата прошла успешно! Подписка действует до %s.", newEnd.Format("02.01.2006")))
	return nil
}
