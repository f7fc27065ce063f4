package cost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PersistStatePath = ""
	cfg.MaxTokensPerHour = 1000
	cfg.MaxCostPerHour = 0
	return cfg
}

func TestNewTracker_RequiresValidConfig(t *testing.T) {
	_, err := NewTracker(nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.AlertThreshold = 2
	_, err = NewTracker(cfg)
	assert.Error(t, err)
}

func TestTracker_StatusTransitions(t *testing.T) {
	tests := []struct {
		name   string
		tokens int64
		want   BudgetStatus
		canGo  bool
	}{
		{"fresh", 0, BudgetHealthy, true},
		{"half used", 500, BudgetHealthy, true},
		{"at alert threshold", 800, BudgetWarning, true},
		{"at limit", 1000, BudgetExceeded, false},
		{"over limit", 1500, BudgetExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := NewTracker(testConfig(t))
			require.NoError(t, err)

			if tt.tokens > 0 {
				require.NoError(t, tracker.RecordUsage(context.Background(), "anthropic", tt.tokens, 0))
			}

			assert.Equal(t, tt.want, tracker.CheckBudget())
			ok, reason := tracker.CanProceed()
			assert.Equal(t, tt.canGo, ok)
			if !ok {
				assert.Contains(t, reason, "hourly token budget exceeded")
			}
		})
	}
}

func TestTracker_CostLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTokensPerHour = 0
	cfg.MaxCostPerHour = 0.01
	cfg.Pricing["cohere"] = Price{Input: 1.0, Output: 1.0}
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	// 10k tokens at $1/M = $0.01
	require.NoError(t, tracker.RecordUsage(context.Background(), "cohere", 5000, 5000))

	ok, reason := tracker.CanProceed()
	assert.False(t, ok)
	assert.Contains(t, reason, "hourly cost budget exceeded")
}

func TestTracker_WindowReset(t *testing.T) {
	tracker, err := NewTracker(testConfig(t))
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }
	tracker.state.WindowStartTime = now

	require.NoError(t, tracker.RecordUsage(context.Background(), "anthropic", 1200, 0))
	ok, _ := tracker.CanProceed()
	require.False(t, ok)

	now = now.Add(time.Hour)
	ok, _ = tracker.CanProceed()
	assert.True(t, ok)

	stats := tracker.GetStats()
	assert.Zero(t, stats.HourlyTokensUsed)
	assert.Equal(t, int64(1200), stats.TotalTokensUsed, "totals survive the window reset")
}

func TestTracker_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	require.NoError(t, tracker.RecordUsage(context.Background(), "anthropic", 1_000_000, 0))
	ok, _ := tracker.CanProceed()
	assert.True(t, ok)
	assert.Equal(t, BudgetHealthy, tracker.CheckBudget())
	assert.Zero(t, tracker.GetStats().TotalTokensUsed)
}

func TestTracker_ProviderBreakdown(t *testing.T) {
	tracker, err := NewTracker(testConfig(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tracker.RecordUsage(ctx, "anthropic", 100, 20))
	require.NoError(t, tracker.RecordUsage(ctx, "anthropic", 50, 10))
	require.NoError(t, tracker.RecordUsage(ctx, "cohere", 30, 5))

	stats := tracker.GetStats()
	assert.Equal(t, int64(180), stats.ProviderTokensUsed["anthropic"])
	assert.Equal(t, int64(35), stats.ProviderTokensUsed["cohere"])
	assert.Equal(t, int64(3), stats.TotalCalls)
}

func TestTracker_PersistsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cost.json")
	cfg := testConfig(t)
	cfg.PersistStatePath = path

	tracker, err := NewTracker(cfg)
	require.NoError(t, err)
	require.NoError(t, tracker.RecordUsage(context.Background(), "anthropic", 300, 40))

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := NewTracker(cfg)
	require.NoError(t, err)
	stats := reloaded.GetStats()
	assert.Equal(t, int64(340), stats.TotalTokensUsed)
	assert.Equal(t, int64(340), stats.HourlyTokensUsed)
	assert.Equal(t, int64(340), stats.ProviderTokensUsed["anthropic"])
}

func TestTracker_CorruptStateStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cost.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cfg := testConfig(t)
	cfg.PersistStatePath = path
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)
	assert.Zero(t, tracker.GetStats().TotalTokensUsed)
}

func TestBudgetStatusString(t *testing.T) {
	assert.Equal(t, "HEALTHY", BudgetHealthy.String())
	assert.Equal(t, "WARNING", BudgetWarning.String())
	assert.Equal(t, "EXCEEDED", BudgetExceeded.String())
	assert.Equal(t, "UNKNOWN(7)", BudgetStatus(7).String())
}
