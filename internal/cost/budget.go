// Package cost enforces an hourly token and dollar budget on AI arbitration calls.
package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates approaching budget limits (>80% by default)
	BudgetWarning
	// BudgetExceeded indicates budget limits have been exceeded
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// BudgetState represents the persisted budget tracking state
type BudgetState struct {
	// Hourly tracking
	HourlyTokensUsed int64     `json:"hourly_tokens_used"`
	HourlyCostUsed   float64   `json:"hourly_cost_used"`
	WindowStartTime  time.Time `json:"window_start_time"`

	// Per-provider tracking (provider -> tokens used, all time)
	ProviderTokensUsed map[string]int64 `json:"provider_tokens_used"`

	TotalTokensUsed int64   `json:"total_tokens_used"`
	TotalCostUsed   float64 `json:"total_cost_used"`
	TotalCalls      int64   `json:"total_calls"`

	LastUpdated time.Time `json:"last_updated"`
}

// Tracker tracks AI cost budgets and enforces limits
type Tracker struct {
	config *Config
	state  *BudgetState
	mu     sync.Mutex

	// Alert throttling
	lastWarningTime  time.Time
	lastExceededTime time.Time
	warningLogged    bool

	now func() time.Time
}

// NewTracker creates a new cost budget tracker
func NewTracker(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	t := &Tracker{config: cfg, now: time.Now}
	t.state = t.freshState()

	// Try to load existing state from disk (for restart recovery)
	if cfg.PersistStatePath != "" {
		if err := t.loadState(); err != nil {
			slog.Warn("failed to load cost state, starting fresh", "path", cfg.PersistStatePath, "error", err)
		} else if t.state.TotalCalls > 0 {
			slog.Info("loaded cost budget state",
				"path", cfg.PersistStatePath,
				"total_cost", t.state.TotalCostUsed,
				"hourly_tokens", t.state.HourlyTokensUsed)
		}
	}

	t.checkAndResetWindow()

	return t, nil
}

func (t *Tracker) freshState() *BudgetState {
	now := t.now()
	return &BudgetState{
		WindowStartTime:    now,
		ProviderTokensUsed: make(map[string]int64),
		LastUpdated:        now,
	}
}

// RecordUsage records token usage for one provider call
func (t *Tracker) RecordUsage(ctx context.Context, provider string, inputTokens, outputTokens int64) error {
	if !t.config.Enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	totalTokens := inputTokens + outputTokens
	cost := t.calculateCost(provider, inputTokens, outputTokens)

	t.checkAndResetWindow()

	t.state.HourlyTokensUsed += totalTokens
	t.state.HourlyCostUsed += cost
	t.state.TotalTokensUsed += totalTokens
	t.state.TotalCostUsed += cost
	t.state.TotalCalls++
	t.state.LastUpdated = t.now()
	if provider != "" {
		t.state.ProviderTokensUsed[provider] += totalTokens
	}

	if err := t.persistState(); err != nil {
		// usage is still counted in memory
		slog.Warn("failed to persist cost state", "error", err)
	}

	status := t.getBudgetStatusLocked()
	slog.Debug("AI usage recorded",
		"provider", provider,
		"tokens", totalTokens,
		"cost_usd", cost,
		"hourly_tokens", t.state.HourlyTokensUsed,
		"status", status.String())

	t.emitAlertsIfNeeded(status)
	return nil
}

// CheckBudget returns the current budget status without recording usage
func (t *Tracker) CheckBudget() BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkAndResetWindow()
	return t.getBudgetStatusLocked()
}

// CanProceed returns true if we can make another AI call without exceeding budget
func (t *Tracker) CanProceed() (bool, string) {
	if !t.config.Enabled {
		return true, ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkAndResetWindow()

	if t.isHourlyTokenLimitExceeded() {
		return false, fmt.Sprintf("hourly token budget exceeded (%d/%d tokens used)",
			t.state.HourlyTokensUsed, t.config.MaxTokensPerHour)
	}

	if t.isHourlyCostLimitExceeded() {
		return false, fmt.Sprintf("hourly cost budget exceeded ($%.2f/$%.2f used)",
			t.state.HourlyCostUsed, t.config.MaxCostPerHour)
	}

	return true, ""
}

// GetStats returns current budget statistics
func (t *Tracker) GetStats() BudgetStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkAndResetWindow()

	providers := make(map[string]int64, len(t.state.ProviderTokensUsed))
	for k, v := range t.state.ProviderTokensUsed {
		providers[k] = v
	}

	return BudgetStats{
		Status:             t.getBudgetStatusLocked(),
		HourlyTokensUsed:   t.state.HourlyTokensUsed,
		HourlyCostUsed:     t.state.HourlyCostUsed,
		TotalTokensUsed:    t.state.TotalTokensUsed,
		TotalCostUsed:      t.state.TotalCostUsed,
		TotalCalls:         t.state.TotalCalls,
		ProviderTokensUsed: providers,
		WindowStartTime:    t.state.WindowStartTime,
		LastUpdated:        t.state.LastUpdated,
		Config:             *t.config,
	}
}

// BudgetStats contains budget statistics
type BudgetStats struct {
	Status             BudgetStatus     `json:"status"`
	HourlyTokensUsed   int64            `json:"hourly_tokens_used"`
	HourlyCostUsed     float64          `json:"hourly_cost_used"`
	TotalTokensUsed    int64            `json:"total_tokens_used"`
	TotalCostUsed      float64          `json:"total_cost_used"`
	TotalCalls         int64            `json:"total_calls"`
	ProviderTokensUsed map[string]int64 `json:"provider_tokens_used"`
	WindowStartTime    time.Time        `json:"window_start_time"`
	LastUpdated        time.Time        `json:"last_updated"`
	Config             Config           `json:"config"`
}

// must be called with mu held
func (t *Tracker) getBudgetStatusLocked() BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}
	if t.isHourlyTokenLimitExceeded() || t.isHourlyCostLimitExceeded() {
		return BudgetExceeded
	}

	if t.config.MaxTokensPerHour > 0 {
		if float64(t.state.HourlyTokensUsed)/float64(t.config.MaxTokensPerHour) >= t.config.AlertThreshold {
			return BudgetWarning
		}
	}
	if t.config.MaxCostPerHour > 0 {
		if t.state.HourlyCostUsed/t.config.MaxCostPerHour >= t.config.AlertThreshold {
			return BudgetWarning
		}
	}

	return BudgetHealthy
}

func (t *Tracker) isHourlyTokenLimitExceeded() bool {
	return t.config.MaxTokensPerHour > 0 && t.state.HourlyTokensUsed >= t.config.MaxTokensPerHour
}

func (t *Tracker) isHourlyCostLimitExceeded() bool {
	return t.config.MaxCostPerHour > 0 && t.state.HourlyCostUsed >= t.config.MaxCostPerHour
}

// calculateCost prices one call at the provider's rate
func (t *Tracker) calculateCost(provider string, inputTokens, outputTokens int64) float64 {
	price := t.config.PriceFor(provider)
	return (float64(inputTokens)*price.Input + float64(outputTokens)*price.Output) / 1_000_000
}

// checkAndResetWindow resets the hourly counters once the window has expired
// MUST be called with mu held
func (t *Tracker) checkAndResetWindow() {
	now := t.now()
	if now.Sub(t.state.WindowStartTime) >= t.config.BudgetResetInterval {
		t.state.HourlyTokensUsed = 0
		t.state.HourlyCostUsed = 0
		t.state.WindowStartTime = now
		t.warningLogged = false
	}
}

// persistState saves the budget state to disk
func (t *Tracker) persistState() error {
	if t.config.PersistStatePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(t.config.PersistStatePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state dir: %w", err)
		}
	}

	if err := os.WriteFile(t.config.PersistStatePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// loadState loads the budget state from disk
func (t *Tracker) loadState() error {
	data, err := os.ReadFile(t.config.PersistStatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No state file yet, start fresh
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state BudgetState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if state.ProviderTokensUsed == nil {
		state.ProviderTokensUsed = make(map[string]int64)
	}

	t.state = &state
	return nil
}

// emitAlertsIfNeeded logs budget warnings, throttled to once per 5 minutes
func (t *Tracker) emitAlertsIfNeeded(status BudgetStatus) {
	now := t.now()

	switch status {
	case BudgetWarning:
		if !t.warningLogged && now.Sub(t.lastWarningTime) > 5*time.Minute {
			slog.Warn("AI cost budget warning",
				"hourly_tokens", t.state.HourlyTokensUsed,
				"max_tokens_per_hour", t.config.MaxTokensPerHour,
				"hourly_cost_usd", t.state.HourlyCostUsed,
				"max_cost_per_hour", t.config.MaxCostPerHour)
			t.lastWarningTime = now
			t.warningLogged = true
		}

	case BudgetExceeded:
		if now.Sub(t.lastExceededTime) > 5*time.Minute {
			resetAt := t.state.WindowStartTime.Add(t.config.BudgetResetInterval)
			slog.Error("AI cost budget exceeded, arbitration falls back to not-duplicate until reset",
				"hourly_tokens", t.state.HourlyTokensUsed,
				"max_tokens_per_hour", t.config.MaxTokensPerHour,
				"hourly_cost_usd", t.state.HourlyCostUsed,
				"resets_in", resetAt.Sub(now).Round(time.Minute))
			t.lastExceededTime = now
		}
	}
}
