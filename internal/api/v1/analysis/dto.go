package analysis

import (
	"time"

	"labelens-backend/internal/api/v1/user"
)

// AnalyzeInput is the inbound analysis request. SubjectLabel is kept on the
// usage event for audit.
type AnalyzeInput struct {
	ImageURL     string `json:"image_url" binding:"required,url"`
	Prompt       string `json:"prompt"`
	SubjectLabel string `json:"subject_label"`
}

// AnalyzeResponse carries the analysis payload, what it cost, and the
// post-debit quota snapshot.
type AnalyzeResponse struct {
	Result         map[string]interface{} `json:"result"`
	Model          string                 `json:"model"`
	PromptTokens   int64                  `json:"prompt_tokens"`
	OutputTokens   int64                  `json:"output_tokens"`
	DebitedCredits int64                  `json:"debited_credits"`
	Quota          user.QuotaInfo         `json:"quota"`
}

// UsageEventResponse is one row of the usage history.
type UsageEventResponse struct {
	ID             uint        `json:"id"`
	CreatedAt      time.Time   `json:"created_at"`
	Kind           string      `json:"kind"`
	SubjectLabel   string      `json:"subject_label"`
	DebitedCredits int64       `json:"debited_credits"`
	CostDetail     interface{} `json:"cost_detail,omitempty"`
}

type UsageHistoryResponse struct {
	Events []UsageEventResponse `json:"events"`
}
