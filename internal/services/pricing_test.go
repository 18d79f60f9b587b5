package services

import (
	"testing"

	"labelens-backend/config"

	"github.com/stretchr/testify/assert"
)

func testPricingTable() PricingTable {
	return PricingTable{
		Rates: map[string]config.ModelRate{
			"gpt-4o":      {InputPerMillion: 2.5, OutputPerMillion: 10},
			"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.6},
		},
		DefaultModel: "gpt-4o",
		Markup:       1.3,
	}
}

func TestPricingTableCost(t *testing.T) {
	table := testPricingTable()

	// (1000/1e6)*2.5 + (500/1e6)*10 = 0.0075, times 1.3 markup
	cost := table.Cost("gpt-4o", 1000, 500)
	assert.InDelta(t, 0.00975, cost, 1e-9)

	// Unknown model bills at the default model's rates
	fallback := table.Cost("gpt-5-experimental", 1000, 500)
	assert.InDelta(t, cost, fallback, 1e-9)

	// Non-positive markup is treated as 1
	table.Markup = 0
	raw := table.Cost("gpt-4o", 1000, 500)
	assert.InDelta(t, 0.0075, raw, 1e-9)
}

func TestCreditsCountMode(t *testing.T) {
	policy := BillingPolicy{Mode: BillingModeCount}

	credits, detail := policy.Credits(3, nil)
	assert.Equal(t, int64(3), credits)
	assert.Equal(t, BillingModeCount, detail.BillingMode)

	// Requested count below 1 still debits 1
	credits, _ = policy.Credits(0, nil)
	assert.Equal(t, int64(1), credits)

	credits, _ = policy.Credits(-5, nil)
	assert.Equal(t, int64(1), credits)

	// Token usage is ignored in count mode
	credits, _ = policy.Credits(2, &TokenUsage{Model: "gpt-4o", PromptTokens: 1e6})
	assert.Equal(t, int64(2), credits)
}

func TestCreditsTokensMode(t *testing.T) {
	policy := BillingPolicy{
		Mode:           BillingModeTokens,
		CreditsPerCent: 1,
		Table:          testPricingTable(),
	}

	// 0.00975 USD = 0.975 cents, rounded up to 1 credit
	credits, detail := policy.Credits(1, &TokenUsage{
		Model:            "gpt-4o",
		PromptTokens:     1000,
		CompletionTokens: 500,
	})
	assert.Equal(t, int64(1), credits)
	assert.Equal(t, BillingModeTokens, detail.BillingMode)
	assert.Equal(t, int64(1000), detail.PromptTokens)
	assert.InDelta(t, 0.00975, detail.CostUSD, 1e-9)

	// Exact cent boundaries do not round up: 1e6 prompt tokens at 2.5
	// with 1.3 markup is exactly 325 cents
	credits, _ = policy.Credits(1, &TokenUsage{Model: "gpt-4o", PromptTokens: 1e6})
	assert.Equal(t, int64(325), credits)

	// Fractional cents always round up, never down
	credits, _ = policy.Credits(1, &TokenUsage{Model: "gpt-4o", PromptTokens: 100000})
	assert.Equal(t, int64(33), credits) // 32.5 cents

	// A call that reports zero tokens falls back to the flat count
	credits, detail = policy.Credits(2, &TokenUsage{Model: "gpt-4o"})
	assert.Equal(t, int64(2), credits)
	assert.Equal(t, BillingModeCount, detail.BillingMode)

	// Nil usage behaves the same
	credits, _ = policy.Credits(1, nil)
	assert.Equal(t, int64(1), credits)

	// Tiny nonzero usage still debits at least 1 credit
	credits, _ = policy.Credits(1, &TokenUsage{Model: "gpt-4o-mini", PromptTokens: 10})
	assert.Equal(t, int64(1), credits)
}
