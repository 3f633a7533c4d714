package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Service *Service
	Webhook *WebhookHandler
}

func NewHandler(service *Service, webhook *WebhookHandler) *Handler {
	return &Handler{Service: service, Webhook: webhook}
}

// Router wires the portal endpoints and the payment webhook.
func (h *Handler) Router() *gin.Engine {
	r := gin.Default()

	r.POST("/generate-referral-link", h.generateReferralLink)
	r.POST("/register", h.register)
	r.POST("/subscribe", h.subscribe)
	r.GET("/my-referrals", h.myReferrals)
	if h.Webhook != nil {
		r.POST("/webhook/yookassa", h.Webhook.Handle)
	}

	return r
}

type generateLinkRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (h *Handler) generateReferralLink(c *gin.Context) {
	var req generateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, link, err := h.Service.GenerateReferralLink(req.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate referral link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"referral_code": code, "referral_link": link})
}

type registerRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Name         string `json:"name" binding:"required"`
	Password     string `json:"password" binding:"required"`
	ReferralCode string `json:"referral_code"`
	RequestIP    string `json:"request_ip" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Service.Register(c.Request.Context(), req.Email, req.Name, req.Password, req.ReferralCode, req.RequestIP)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUnknownCode), errors.Is(err, ErrIPLimit):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":      result.UserID,
		"awarded_days": result.AwardedDays,
		"referrer_id":  result.ReferrerID,
	})
}

type subscribeRequest struct {
	UserID   uint `json:"user_id" binding:"required"`
	PlanDays int  `json:"plan_days" binding:"required,gt=0"`
}

func (h *Handler) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Service.Subscribe(c.Request.Context(), req.UserID, req.PlanDays)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":                 result.UserID,
		"subscription_end":        result.SubscriptionEnd,
		"referrer_bonus_awarded":  result.ReferrerAwarded,
		"referrer_id":             result.ReferrerID,
	})
}

type myReferralsQuery struct {
	UserID uint `form:"user_id" binding:"required"`
}

func (h *Handler) myReferrals(c *gin.Context) {
	var q myReferralsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Service.MyReferrals(q.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load referrals"})
		return
	}

	c.JSON(http.StatusOK, result)
}
