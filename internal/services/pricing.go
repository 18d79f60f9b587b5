package services

import (
	"math"

	"labelens-backend/config"

	"go.uber.org/zap"
)

// Billing modes. "count" charges a flat credit per call; "tokens" derives
// the charge from the vision model's token usage.
const (
	BillingModeCount  = "count"
	BillingModeTokens = "tokens"
)

// TokenUsage is the usage block reported by the vision API for one call.
type TokenUsage struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

// PricingTable maps model identifiers to their per-million-token rates with a
// uniform markup. It is an immutable value built from configuration so tests
// can substitute fixtures.
type PricingTable struct {
	Rates        map[string]config.ModelRate
	DefaultModel string
	Markup       float64
}

// Cost returns the marked-up USD cost of a call. Lookup is by exact model
// identifier; an unknown model bills at the default model's rates rather than
// erroring, so a newly introduced model name never blocks billing. The
// fallback is logged because it can mis-price until the table is updated.
func (t PricingTable) Cost(model string, promptTokens, completionTokens int64) float64 {
	rate, ok := t.Rates[model]
	if !ok {
		rate = t.Rates[t.DefaultModel]
		zap.L().Warn("pricing table has no entry for model, billing at default rates",
			zap.String("model", model),
			zap.String("default_model", t.DefaultModel))
	}

	markup := t.Markup
	if markup <= 0 {
		markup = 1
	}

	cost := (float64(promptTokens)/1e6)*rate.InputPerMillion +
		(float64(completionTokens)/1e6)*rate.OutputPerMillion
	return cost * markup
}

// CostDetail is the audit record attached to a usage event. It is kept for
// debugging and reconciliation; billing never re-parses it.
type CostDetail struct {
	Model            string  `json:"model,omitempty"`
	PromptTokens     int64   `json:"prompt_tokens,omitempty"`
	CompletionTokens int64   `json:"completion_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
	BillingMode      string  `json:"billing_mode"`
	CreditsPerCent   float64 `json:"credits_per_cent,omitempty"`
}

// BillingPolicy converts a unit of work into an integer credit debit.
type BillingPolicy struct {
	Mode           string
	CreditsPerCent float64
	Table          PricingTable
}

// PolicyFromConfig builds the billing policy the ledger uses.
func PolicyFromConfig(cfg *config.Config) BillingPolicy {
	return BillingPolicy{
		Mode:           cfg.BillingMode,
		CreditsPerCent: cfg.CreditsPerCent,
		Table: PricingTable{
			Rates:        cfg.ModelRates,
			DefaultModel: cfg.DefaultModel,
			Markup:       cfg.PricingMarkup,
		},
	}
}

// Credits computes the debit for one billed action, plus the audit detail
// that goes on the usage event.
//
// In "count" mode (or when token data is absent or all-zero, e.g. a cache hit
// or a deterministic-only pass) the debit is max(1, requestedCount). In
// "tokens" mode the cost is converted to cents, multiplied by the
// credits-per-cent rate and rounded UP to a whole credit, never down: the
// system must not under-charge due to fractional rounding. Any nonzero token
// usage debits at least 1 credit.
func (p BillingPolicy) Credits(requestedCount int64, usage *TokenUsage) (int64, CostDetail) {
	flat := requestedCount
	if flat < 1 {
		flat = 1
	}

	if p.Mode != BillingModeTokens || usage == nil ||
		(usage.PromptTokens == 0 && usage.CompletionTokens == 0) {
		return flat, CostDetail{BillingMode: BillingModeCount}
	}

	cost := p.Table.Cost(usage.Model, usage.PromptTokens, usage.CompletionTokens)
	cents := cost * 100
	credits := int64(math.Ceil(cents * p.CreditsPerCent))
	if credits < 1 {
		credits = 1
	}

	return credits, CostDetail{
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CostUSD:          cost,
		BillingMode:      BillingModeTokens,
		CreditsPerCent:   p.CreditsPerCent,
	}
}
