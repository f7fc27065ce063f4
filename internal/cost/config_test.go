package cost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePricing(t *testing.T) {
	got, err := ParsePricing(" Anthropic=0.8/4 , cohere=2.5/10,")
	require.NoError(t, err)
	assert.Equal(t, map[string]Price{
		"anthropic": {Input: 0.8, Output: 4},
		"cohere":    {Input: 2.5, Output: 10},
	}, got)

	for _, bad := range []string{"anthropic", "anthropic=1", "anthropic=x/1", "anthropic=1/y"} {
		_, err := ParsePricing(bad)
		assert.Error(t, err, bad)
	}
}

func TestPriceFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, Price{Input: 2.5, Output: 10}, cfg.PriceFor("cohere"))
	assert.Equal(t, Price{Input: cfg.InputTokenCost, Output: cfg.OutputTokenCost}, cfg.PriceFor("other"))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NEWSDEDUP_COST_ENABLED", "false")
	t.Setenv("NEWSDEDUP_COST_MAX_TOKENS_PER_HOUR", "5000")
	t.Setenv("NEWSDEDUP_COST_ALERT_THRESHOLD", "0.5")
	t.Setenv("NEWSDEDUP_COST_BUDGET_RESET_INTERVAL", "30m")
	t.Setenv("NEWSDEDUP_COST_PERSIST_STATE_PATH", "")
	t.Setenv("NEWSDEDUP_COST_PRICING", "cohere=1/2")

	cfg := LoadFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, int64(5000), cfg.MaxTokensPerHour)
	assert.Equal(t, 0.5, cfg.AlertThreshold)
	assert.Equal(t, 30*time.Minute, cfg.BudgetResetInterval)
	assert.Empty(t, cfg.PersistStatePath)
	assert.Equal(t, Price{Input: 1, Output: 2}, cfg.PriceFor("cohere"))
	assert.Equal(t, Price{Input: 0.8, Output: 4}, cfg.PriceFor("anthropic"), "unlisted providers keep defaults")
}

func TestLoadFromEnv_InvalidFallsBackToDefaults(t *testing.T) {
	t.Setenv("NEWSDEDUP_COST_ALERT_THRESHOLD", "1.5")
	cfg := LoadFromEnv()
	assert.Equal(t, DefaultConfig().AlertThreshold, cfg.AlertThreshold)

	t.Setenv("NEWSDEDUP_COST_ALERT_THRESHOLD", "")
	t.Setenv("NEWSDEDUP_COST_MAX_TOKENS_PER_HOUR", "-1")
	cfg = LoadFromEnv()
	assert.Equal(t, DefaultConfig().MaxTokensPerHour, cfg.MaxTokensPerHour)
}

func TestTracker_PricesPerProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTokensPerHour = 0
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	require.NoError(t, tracker.RecordUsage(context.Background(), "anthropic", 1_000_000, 0))
	require.NoError(t, tracker.RecordUsage(context.Background(), "cohere", 1_000_000, 0))
	assert.InDelta(t, 0.8+2.5, tracker.GetStats().TotalCostUsed, 1e-9)
}

func TestLoadFromEnv_UnparseableIgnored(t *testing.T) {
	t.Setenv("NEWSDEDUP_COST_MAX_TOKENS_PER_HOUR", "lots")
	t.Setenv("NEWSDEDUP_COST_MAX_COST_PER_HOUR", "cheap")
	t.Setenv("NEWSDEDUP_COST_ENABLED", "maybe")

	cfg := LoadFromEnv()
	def := DefaultConfig()
	assert.Equal(t, def.MaxTokensPerHour, cfg.MaxTokensPerHour)
	assert.Equal(t, def.MaxCostPerHour, cfg.MaxCostPerHour)
	assert.True(t, cfg.Enabled)
}
