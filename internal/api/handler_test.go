package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"aura-bot/internal/models"
	"aura-bot/internal/refcode"
	"aura-bot/internal/referral"
)

func newTestAPI(t *testing.T) (*gin.Engine, *gorm.DB, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Referral{}, &models.BonusEvent{},
		&models.Payment{}, &models.EventLog{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	engine := referral.NewEngine(db, refcode.NewCodec(8349271), 7, 7, nil)
	service := NewService(db, engine, "https://aura.example.com/register?code=", 1)
	handler := NewHandler(service, NewWebhookHandler(db, engine, nil))
	return handler.Router(), db, service
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, router *gin.Engine, email, code, ip string) map[string]any {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/register", gin.H{
		"email":         email,
		"name":          "Test User",
		"password":      "secret123",
		"referral_code": code,
		"request_ip":    ip,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGenerateReferralLinkIdempotent(t *testing.T) {
	router, _, _ := newTestAPI(t)

	resp := registerUser(t, router, "a@example.com", "", "10.0.0.1")
	userID := uint(resp["user_id"].(float64))

	w := doJSON(t, router, http.MethodPost, "/generate-referral-link", gin.H{"user_id": userID})
	require.Equal(t, http.StatusOK, w.Code)
	var first map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.NotEmpty(t, first["referral_code"])
	assert.Contains(t, first["referral_link"], first["referral_code"])

	w = doJSON(t, router, http.MethodPost, "/generate-referral-link", gin.H{"user_id": userID})
	require.Equal(t, http.StatusOK, w.Code)
	var second map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, first["referral_code"], second["referral_code"])
}

func TestGenerateReferralLinkUnknownUser(t *testing.T) {
	router, _, _ := newTestAPI(t)
	w := doJSON(t, router, http.MethodPost, "/generate-referral-link", gin.H{"user_id": 9999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterWithReferralAwardsJoinBonus(t *testing.T) {
	router, db, s := newTestAPI(t)

	referrer := registerUser(t, router, "a@example.com", "", "10.0.0.1")
	referrerID := uint(referrer["user_id"].(float64))
	code := s.Engine.Codec.Encode(referrerID)

	resp := registerUser(t, router, "b@example.com", code, "10.0.0.2")
	assert.Equal(t, float64(7), resp["awarded_days"])
	assert.Equal(t, float64(referrerID), resp["referrer_id"])

	var ref models.Referral
	require.NoError(t, db.Where("referrer_id = ?", referrerID).First(&ref).Error)
	assert.Equal(t, models.RefStatusJoined, ref.Status)

	var event models.BonusEvent
	require.NoError(t, db.Where("type = ?", models.BonusTypeJoin).First(&event).Error)
	assert.Equal(t, uint(resp["user_id"].(float64)), event.UserID)
	assert.Equal(t, 7, event.Days)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router, _, _ := newTestAPI(t)
	registerUser(t, router, "a@example.com", "", "10.0.0.1")

	w := doJSON(t, router, http.MethodPost, "/register", gin.H{
		"email": "a@example.com", "name": "Again", "password": "x", "request_ip": "10.0.0.1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterUnknownReferralCode(t *testing.T) {
	router, _, _ := newTestAPI(t)
	w := doJSON(t, router, http.MethodPost, "/register", gin.H{
		"email": "b@example.com", "name": "B", "password": "x",
		"referral_code": "!!!", "request_ip": "10.0.0.1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterIPLimit(t *testing.T) {
	router, _, s := newTestAPI(t)

	referrer := registerUser(t, router, "a@example.com", "", "10.0.0.1")
	code := s.Engine.Codec.Encode(uint(referrer["user_id"].(float64)))

	registerUser(t, router, "b@example.com", code, "10.0.0.9")

	// Second signup for the same referrer from the same address is capped.
	w := doJSON(t, router, http.MethodPost, "/register", gin.H{
		"email": "c@example.com", "name": "C", "password": "x",
		"referral_code": code, "request_ip": "10.0.0.9",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeAwardsReferrerOnce(t *testing.T) {
	router, db, s := newTestAPI(t)

	referrer := registerUser(t, router, "a@example.com", "", "10.0.0.1")
	referrerID := uint(referrer["user_id"].(float64))
	code := s.Engine.Codec.Encode(referrerID)
	referred := registerUser(t, router, "b@example.com", code, "10.0.0.2")
	referredID := uint(referred["user_id"].(float64))

	w := doJSON(t, router, http.MethodPost, "/subscribe", gin.H{"user_id": referredID, "plan_days": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["referrer_bonus_awarded"])
	assert.Equal(t, float64(referrerID), resp["referrer_id"])

	// Replayed subscription: no second referrer bonus.
	w = doJSON(t, router, http.MethodPost, "/subscribe", gin.H{"user_id": referredID, "plan_days": 30})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["referrer_bonus_awarded"])

	var count int64
	require.NoError(t, db.Model(&models.BonusEvent{}).
		Where("user_id = ? AND type = ?", referrerID, models.BonusTypePaid).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubscribeWithoutReferralIsNormal(t *testing.T) {
	router, _, _ := newTestAPI(t)
	user := registerUser(t, router, "solo@example.com", "", "10.0.0.1")

	w := doJSON(t, router, http.MethodPost, "/subscribe", gin.H{
		"user_id": uint(user["user_id"].(float64)), "plan_days": 30,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["referrer_bonus_awarded"])
	assert.Nil(t, resp["referrer_id"])
}

func TestMyReferrals(t *testing.T) {
	router, _, s := newTestAPI(t)

	referrer := registerUser(t, router, "a@example.com", "", "10.0.0.1")
	referrerID := uint(referrer["user_id"].(float64))
	code := s.Engine.Codec.Encode(referrerID)

	referred := registerUser(t, router, "b@example.com", code, "10.0.0.2")
	referredID := uint(referred["user_id"].(float64))
	w := doJSON(t, router, http.MethodPost, "/subscribe", gin.H{"user_id": referredID, "plan_days": 30})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/my-referrals?user_id=%d", referrerID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp MyReferralsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, referrerID, resp.ReferrerID)
	assert.Equal(t, int64(1), resp.TotalJoined)
	assert.Equal(t, int64(1), resp.TotalPaid)
	assert.Equal(t, 7, resp.BonusBalance)
	require.Len(t, resp.Referrals, 1)
	assert.Equal(t, referredID, resp.Referrals[0].ReferredID)
	assert.Equal(t, models.RefStatusPaid, resp.Referrals[0].Status)
	assert.Equal(t, 7, resp.Referrals[0].JoinBonusDays)
	assert.True(t, resp.Referrals[0].PaidBonusAwarded)
}
