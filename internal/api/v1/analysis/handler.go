package analysis

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"labelens-backend/config"
	"labelens-backend/internal/api/v1/user"
	"labelens-backend/internal/models"
	"labelens-backend/internal/services"
	"labelens-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// BuildOrchestrator constructs the orchestrator for one request. Tests swap
// it for one backed by a scripted vision client.
var BuildOrchestrator = func() (*services.AnalysisOrchestrator, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &services.AnalysisOrchestrator{
		Client:  services.NewVisionClient(cfg),
		Timeout: cfg.AnalysisTimeout,
		Retries: cfg.AnalysisRetries,
	}, nil
}

// Analyze runs one label image through the vision service and debits the
// user's quota for the successful result.
func Analyze(c *gin.Context) {
	var input AnalyzeInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	u, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	currentUser := u.(models.User)

	subject := input.SubjectLabel
	if subject == "" {
		subject = input.ImageURL
	}

	orchestrator, err := BuildOrchestrator()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Analysis service unavailable"))
		return
	}

	outcome, err := orchestrator.Run(c.Request.Context(), currentUser.ID, input.ImageURL, input.Prompt, subject)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrQuotaExceeded):
			c.JSON(http.StatusPaymentRequired, utils.NewErrorResponse(http.StatusPaymentRequired, "Credit quota exceeded"))
		case errors.Is(err, services.ErrUserNotFound):
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "User not found"))
		case errors.Is(err, services.ErrAnalysisTimedOut):
			// No quota was consumed; the caller may retry.
			c.JSON(http.StatusGatewayTimeout, utils.NewErrorResponse(http.StatusGatewayTimeout, "Analysis timed out, no credits were charged"))
		case errors.Is(err, services.ErrAnalysisFailed):
			c.JSON(http.StatusBadGateway, utils.NewErrorResponse(http.StatusBadGateway, "Analysis failed, no credits were charged"))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Analysis could not be completed"))
		}
		return
	}

	var usagePercentage float64
	if outcome.User.QuotaTotal > 0 {
		usagePercentage = float64(outcome.User.QuotaUsed) / float64(outcome.User.QuotaTotal) * 100
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Analysis completed", AnalyzeResponse{
		Result:         outcome.Result.Payload,
		Model:          outcome.Result.Usage.Model,
		PromptTokens:   outcome.Result.Usage.PromptTokens,
		OutputTokens:   outcome.Result.Usage.CompletionTokens,
		DebitedCredits: outcome.DebitedCredits,
		Quota: user.QuotaInfo{
			Total:           outcome.User.QuotaTotal,
			Used:            outcome.User.QuotaUsed,
			Remaining:       outcome.User.RemainingCredits(),
			UsagePercentage: usagePercentage,
		},
	}))
}

// UsageHistory lists the caller's usage events newest first, with an
// optional before-timestamp cursor (unix milliseconds).
func UsageHistory(c *gin.Context) {
	u, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	currentUser := u.(models.User)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	var before *time.Time
	if beforeStr := c.Query("before"); beforeStr != "" {
		ms, err := strconv.ParseInt(beforeStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid before timestamp"))
			return
		}
		t := time.UnixMilli(ms)
		before = &t
	}

	events, err := services.UsageHistory(currentUser.ID, limit, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load usage history"))
		return
	}

	resp := UsageHistoryResponse{Events: make([]UsageEventResponse, 0, len(events))}
	for _, e := range events {
		var detail interface{}
		if len(e.CostDetail) > 0 {
			json.Unmarshal(e.CostDetail, &detail)
		}
		resp.Events = append(resp.Events, UsageEventResponse{
			ID:             e.ID,
			CreatedAt:      e.CreatedAt,
			Kind:           e.Kind,
			SubjectLabel:   e.SubjectLabel,
			DebitedCredits: e.DebitedCredits,
			CostDetail:     detail,
		})
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Usage history retrieved", resp))
}
