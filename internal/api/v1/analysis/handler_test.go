package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"labelens-backend/internal/database"
	"labelens-backend/internal/models"
	"labelens-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubVisionClient struct {
	result *services.VisionResult
	err    error
	hang   bool
}

func (s *stubVisionClient) Analyze(ctx context.Context, imageURL, prompt string) (*services.VisionResult, error) {
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.result, s.err
}

func setupAnalysisHandlerTest(t *testing.T, client services.VisionClient) (*gin.Engine, *models.User) {
	t.Setenv("BILLING_MODE", "tokens")
	t.Setenv("PRICING_MARKUP", "1.3")
	t.Setenv("CREDITS_PER_CENT", "1")
	t.Setenv("DEFAULT_MODEL", "gpt-4o")

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}
	db.Migrator().DropTable(&models.User{}, &models.UsageEvent{}, &models.Purchase{})
	db.AutoMigrate(&models.User{}, &models.UsageEvent{}, &models.Purchase{})
	database.DB = db

	user := &models.User{Username: "analyst", Password: "x", QuotaTotal: 100}
	database.DB.Create(user)

	original := BuildOrchestrator
	BuildOrchestrator = func() (*services.AnalysisOrchestrator, error) {
		return &services.AnalysisOrchestrator{
			Client:  client,
			Timeout: 30 * time.Millisecond,
			Retries: 1,
		}, nil
	}
	t.Cleanup(func() { BuildOrchestrator = original })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("/api/v1")
	authed.Use(func(c *gin.Context) {
		c.Set("user", *user)
		c.Next()
	})
	RegisterRoutes(authed)
	return r, user
}

func postAnalyze(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/analysis", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeHandler(t *testing.T) {
	client := &stubVisionClient{result: &services.VisionResult{
		Payload: map[string]interface{}{"product_name": "Daily Shampoo", "volume": "400ml"},
		Usage:   services.TokenUsage{Model: "gpt-4o", PromptTokens: 1000, CompletionTokens: 500},
	}}
	r, user := setupAnalysisHandlerTest(t, client)

	w := postAnalyze(r, `{"image_url":"https://img.example.com/label.png","subject_label":"shampoo-400ml"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data AnalyzeResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Daily Shampoo", resp.Data.Result["product_name"])
	assert.Equal(t, int64(1), resp.Data.DebitedCredits)
	assert.Equal(t, int64(1), resp.Data.Quota.Used)
	assert.Equal(t, int64(99), resp.Data.Quota.Remaining)

	var event models.UsageEvent
	assert.NoError(t, database.DB.Where("user_id = ?", user.ID).First(&event).Error)
	assert.Equal(t, "shampoo-400ml", event.SubjectLabel)
}

func TestAnalyzeHandler_BadInput(t *testing.T) {
	r, _ := setupAnalysisHandlerTest(t, &stubVisionClient{})

	// Missing image_url
	w := postAnalyze(r, `{"prompt":"describe"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Not a URL
	w = postAnalyze(r, `{"image_url":"not-a-url"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeHandler_Timeout(t *testing.T) {
	r, user := setupAnalysisHandlerTest(t, &stubVisionClient{hang: true})

	w := postAnalyze(r, `{"image_url":"https://img.example.com/label.png"}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var after models.User
	database.DB.First(&after, user.ID)
	assert.Equal(t, int64(0), after.QuotaUsed)
}

func TestAnalyzeHandler_QuotaExceeded(t *testing.T) {
	r, user := setupAnalysisHandlerTest(t, &stubVisionClient{result: &services.VisionResult{}})
	database.DB.Model(&models.User{}).Where("id = ?", user.ID).
		UpdateColumn("quota_used", gorm.Expr("quota_total"))

	w := postAnalyze(r, `{"image_url":"https://img.example.com/label.png"}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestUsageHistoryHandler(t *testing.T) {
	r, user := setupAnalysisHandlerTest(t, &stubVisionClient{})

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		database.DB.Create(&models.UsageEvent{
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			UserID:         user.ID,
			Kind:           "analyze",
			SubjectLabel:   "soap-bar",
			DebitedCredits: 1,
		})
	}

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/analysis/usage?limit=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data UsageHistoryResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Events, 2)
	assert.True(t, resp.Data.Events[0].CreatedAt.After(resp.Data.Events[1].CreatedAt))

	// Page two via the before cursor.
	cursor := resp.Data.Events[1].CreatedAt.UnixMilli()
	req, _ = http.NewRequest(http.MethodGet,
		"/api/v1/analysis/usage?before="+strconv.FormatInt(cursor, 10), nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Events, 1)

	// Garbage cursor is rejected.
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/analysis/usage?before=notanumber", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
