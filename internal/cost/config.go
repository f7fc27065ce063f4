package cost

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Price is the USD cost per million tokens for one provider
type Price struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// Config holds cost budgeting configuration
type Config struct {
	// MaxTokensPerHour caps input + output tokens per window. 0 = unlimited.
	// Arbitration prompts are small, so the default is a runaway guard. Default: 200000
	MaxTokensPerHour int64 `json:"max_tokens_per_hour"`

	// MaxCostPerHour caps USD spend per window. 0 = unlimited. Default: 1.00
	MaxCostPerHour float64 `json:"max_cost_per_hour"`

	// AlertThreshold is the fraction of either budget that logs a warning. Default: 0.80
	AlertThreshold float64 `json:"alert_threshold"`

	// BudgetResetInterval is the budget window length. Default: 1h
	BudgetResetInterval time.Duration `json:"budget_reset_interval"`

	// PersistStatePath keeps usage across restarts. Empty disables persistence.
	// Default: .newsdedup/cost_state.json
	PersistStatePath string `json:"persist_state_path"`

	// Enabled turns budgeting on. Default: true
	Enabled bool `json:"enabled"`

	// Pricing holds per-provider prices keyed by provider name
	Pricing map[string]Price `json:"pricing"`

	// InputTokenCost and OutputTokenCost price providers missing from Pricing
	InputTokenCost  float64 `json:"input_token_cost"`
	OutputTokenCost float64 `json:"output_token_cost"`
}

// DefaultPricing returns list prices for the arbitration models
func DefaultPricing() map[string]Price {
	return map[string]Price{
		"anthropic": {Input: 0.80, Output: 4.00}, // claude 3.5 haiku
		"cohere":    {Input: 2.50, Output: 10.00},
	}
}

// DefaultConfig returns default cost budgeting configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:             true,
		MaxTokensPerHour:    200000,
		MaxCostPerHour:      1.00,
		AlertThreshold:      0.80,
		BudgetResetInterval: time.Hour,
		PersistStatePath:    ".newsdedup/cost_state.json",
		Pricing:             DefaultPricing(),
		InputTokenCost:      0.80,
		OutputTokenCost:     4.00,
	}
}

// PriceFor returns the price used for provider
func (c *Config) PriceFor(provider string) Price {
	if p, ok := c.Pricing[provider]; ok {
		return p
	}
	return Price{Input: c.InputTokenCost, Output: c.OutputTokenCost}
}

// LoadFromEnv overlays NEWSDEDUP_COST_* variables on the defaults.
// Unparseable values are logged and ignored; an invalid result falls back
// to the defaults.
//
//	NEWSDEDUP_COST_ENABLED                true|false
//	NEWSDEDUP_COST_MAX_TOKENS_PER_HOUR    int, 0 = unlimited
//	NEWSDEDUP_COST_MAX_COST_PER_HOUR      USD, 0 = unlimited
//	NEWSDEDUP_COST_ALERT_THRESHOLD        (0,1]
//	NEWSDEDUP_COST_BUDGET_RESET_INTERVAL  Go duration
//	NEWSDEDUP_COST_PERSIST_STATE_PATH     path, empty disables
//	NEWSDEDUP_COST_PRICING                provider=in/out,... e.g. anthropic=0.8/4
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if val := os.Getenv("NEWSDEDUP_COST_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Enabled = b
		} else {
			warnIgnored("NEWSDEDUP_COST_ENABLED", val, err)
		}
	}
	envParse("NEWSDEDUP_COST_MAX_TOKENS_PER_HOUR", func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			cfg.MaxTokensPerHour = n
		}
		return err
	})
	envParse("NEWSDEDUP_COST_MAX_COST_PER_HOUR", func(v string) error {
		return parseFloatInto(v, &cfg.MaxCostPerHour)
	})
	envParse("NEWSDEDUP_COST_ALERT_THRESHOLD", func(v string) error {
		return parseFloatInto(v, &cfg.AlertThreshold)
	})
	envParse("NEWSDEDUP_COST_BUDGET_RESET_INTERVAL", func(v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			cfg.BudgetResetInterval = d
		}
		return err
	})
	if val, ok := os.LookupEnv("NEWSDEDUP_COST_PERSIST_STATE_PATH"); ok {
		cfg.PersistStatePath = val
	}
	envParse("NEWSDEDUP_COST_PRICING", func(v string) error {
		pricing, err := ParsePricing(v)
		if err != nil {
			return err
		}
		for name, p := range pricing {
			cfg.Pricing[name] = p
		}
		return nil
	})

	if err := cfg.Validate(); err != nil {
		slog.Warn("invalid cost config from environment, using defaults", "error", err)
		return DefaultConfig()
	}
	return cfg
}

// envParse applies set to key's value when it is non-empty. A parse error
// leaves the field unchanged and is logged.
func envParse(key string, set func(string) error) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	if err := set(val); err != nil {
		warnIgnored(key, val, err)
	}
}

func parseFloatInto(v string, dest *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err == nil {
		*dest = f
	}
	return err
}

func warnIgnored(key, val string, err error) {
	slog.Warn("ignoring invalid cost setting", "key", key, "value", val, "error", err)
}

// ParsePricing parses "provider=input/output,..." with prices in USD per
// million tokens
func ParsePricing(s string) (map[string]Price, error) {
	out := make(map[string]Price)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, prices, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("pricing entry %q: want provider=input/output", entry)
		}
		in, outStr, ok := strings.Cut(prices, "/")
		if !ok {
			return nil, fmt.Errorf("pricing entry %q: want provider=input/output", entry)
		}
		inCost, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
		if err != nil {
			return nil, fmt.Errorf("pricing entry %q: %w", entry, err)
		}
		outCost, err := strconv.ParseFloat(strings.TrimSpace(outStr), 64)
		if err != nil {
			return nil, fmt.Errorf("pricing entry %q: %w", entry, err)
		}
		out[strings.ToLower(strings.TrimSpace(name))] = Price{Input: inCost, Output: outCost}
	}
	return out, nil
}

// Validate checks that the configuration has safe and reasonable values
func (c *Config) Validate() error {
	if c.MaxTokensPerHour < 0 {
		return fmt.Errorf("max_tokens_per_hour must be non-negative, got %d", c.MaxTokensPerHour)
	}
	if c.MaxCostPerHour < 0 {
		return fmt.Errorf("max_cost_per_hour must be non-negative, got %.2f", c.MaxCostPerHour)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	if c.BudgetResetInterval <= 0 {
		return fmt.Errorf("budget_reset_interval must be positive, got %v", c.BudgetResetInterval)
	}
	if c.InputTokenCost < 0 || c.OutputTokenCost < 0 {
		return fmt.Errorf("token costs must be non-negative")
	}
	names := make([]string, 0, len(c.Pricing))
	for name := range c.Pricing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Pricing[name]; p.Input < 0 || p.Output < 0 {
			return fmt.Errorf("pricing for %s must be non-negative", name)
		}
	}
	return nil
}
