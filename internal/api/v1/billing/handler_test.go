package billing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"labelens-backend/internal/database"
	"labelens-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupWebhookTest(t *testing.T) *gin.Engine {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_test")

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}
	db.Migrator().DropTable(&models.User{}, &models.UsageEvent{}, &models.Purchase{})
	db.AutoMigrate(&models.User{}, &models.UsageEvent{}, &models.Purchase{})
	database.DB = db

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterWebhookRoutes(r.Group("/api/v1"))
	return r
}

func signBody(secret string, body []byte) string {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhook(t *testing.T) {
	r := setupWebhookTest(t)

	user := models.User{Username: "buyer", Password: "x", QuotaTotal: 10}
	database.DB.Create(&user)

	body := []byte(fmt.Sprintf(
		`{"type":"checkout.session.completed","session_id":"cs_http","user_id":%d,"package_id":"standard","credits":500,"amount_minor_units":1999}`,
		user.ID))

	w := postWebhook(r, body, signBody("whsec_test", body))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Outcome string `json:"outcome"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "applied", resp.Data.Outcome)

	var after models.User
	database.DB.First(&after, user.ID)
	assert.Equal(t, int64(510), after.QuotaTotal)

	// Redelivery of the same session is acknowledged but not re-credited.
	w = postWebhook(r, body, signBody("whsec_test", body))
	assert.Equal(t, http.StatusOK, w.Code)

	database.DB.First(&after, user.ID)
	assert.Equal(t, int64(510), after.QuotaTotal)

	var purchases int64
	database.DB.Model(&models.Purchase{}).Count(&purchases)
	assert.Equal(t, int64(1), purchases)
}

func TestPaymentWebhook_BadSignature(t *testing.T) {
	r := setupWebhookTest(t)

	user := models.User{Username: "buyer", Password: "x", QuotaTotal: 10}
	database.DB.Create(&user)

	body := []byte(fmt.Sprintf(
		`{"type":"checkout.session.completed","session_id":"cs_forged","user_id":%d,"credits":500}`, user.ID))

	// Missing header
	w := postWebhook(r, body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Signed with the wrong secret
	w = postWebhook(r, body, signBody("whsec_wrong", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var after models.User
	database.DB.First(&after, user.ID)
	assert.Equal(t, int64(10), after.QuotaTotal)
}

func TestPaymentWebhook_IgnoredEvent(t *testing.T) {
	r := setupWebhookTest(t)

	body := []byte(`{"type":"customer.created","session_id":"cs_x","user_id":1,"credits":100}`)
	w := postWebhook(r, body, signBody("whsec_test", body))

	// Acknowledged so the provider stops redelivering.
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Outcome string `json:"outcome"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp.Data.Outcome)
}
