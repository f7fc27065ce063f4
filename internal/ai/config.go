package ai

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config describes which providers to build and how to call them
type Config struct {
	// ProviderOrder lists provider names, highest priority first.
	// Default: anthropic,cohere
	ProviderOrder []string

	AnthropicKeys  []string
	AnthropicModel string
	// KeyResetInterval clears per-key usage counters. Default: 1h
	KeyResetInterval time.Duration

	CohereKey   string
	CohereModel string

	// FailoverCooldown is how long a failed provider is skipped. Default: 5m
	FailoverCooldown time.Duration

	Retry RetryConfig
}

// DefaultConfig returns the default AI configuration with no credentials
func DefaultConfig() Config {
	return Config{
		ProviderOrder:    []string{ProviderAnthropic, ProviderCohere},
		AnthropicModel:   ModelHaiku,
		KeyResetInterval: time.Hour,
		CohereModel:      ModelCohereCommand,
		FailoverCooldown: 5 * time.Minute,
		Retry:            DefaultRetryConfig(),
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if len(c.ProviderOrder) == 0 {
		return fmt.Errorf("provider_order cannot be empty")
	}
	for _, name := range c.ProviderOrder {
		if name != ProviderAnthropic && name != ProviderCohere {
			return fmt.Errorf("unknown provider %q", name)
		}
	}
	if c.FailoverCooldown < 0 {
		return fmt.Errorf("failover_cooldown cannot be negative (got %v)", c.FailoverCooldown)
	}
	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 0 and 10 (got %d)", c.Retry.MaxRetries)
	}
	if c.Retry.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %v)", c.Retry.Timeout)
	}
	if c.Retry.MaxConcurrentCalls < 0 {
		return fmt.Errorf("max_concurrent_calls cannot be negative (got %d)", c.Retry.MaxConcurrentCalls)
	}
	return nil
}

// HasCredentials reports whether at least one provider can be built
func (c Config) HasCredentials() bool {
	return len(c.AnthropicKeys) > 0 || c.CohereKey != ""
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - ANTHROPIC_API_KEYS / ANTHROPIC_API_KEY: Anthropic keys
//   - COHERE_API_KEY: Cohere key
//   - NEWSDEDUP_AI_PROVIDERS: comma-separated provider order (default: anthropic,cohere)
//   - NEWSDEDUP_MODEL_DEFAULT: Anthropic model (default: claude-3-5-haiku)
//   - NEWSDEDUP_COHERE_MODEL: Cohere model
//   - NEWSDEDUP_AI_MAX_RETRIES: retries per provider (default: 2)
//   - NEWSDEDUP_AI_TIMEOUT_SECS: per-attempt timeout (default: 30)
//   - NEWSDEDUP_AI_MAX_CONCURRENT: in-flight call cap (default: 3)
//   - NEWSDEDUP_AI_FAILOVER_COOLDOWN_SECS: failed provider cooldown (default: 300)
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.AnthropicKeys = KeysFromEnv()
	cfg.AnthropicModel = GetDefaultModel()
	cfg.CohereKey = os.Getenv("COHERE_API_KEY")

	if value := os.Getenv("NEWSDEDUP_AI_PROVIDERS"); value != "" {
		var order []string
		for _, name := range strings.Split(value, ",") {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				order = append(order, name)
			}
		}
		cfg.ProviderOrder = order
	}
	if value := os.Getenv("NEWSDEDUP_COHERE_MODEL"); value != "" {
		cfg.CohereModel = value
	}
	if err := parseEnvInt("NEWSDEDUP_AI_MAX_RETRIES", &cfg.Retry.MaxRetries); err != nil {
		return cfg, err
	}
	if err := parseEnvSeconds("NEWSDEDUP_AI_TIMEOUT_SECS", &cfg.Retry.Timeout); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("NEWSDEDUP_AI_MAX_CONCURRENT", &cfg.Retry.MaxConcurrentCalls); err != nil {
		return cfg, err
	}
	if err := parseEnvSeconds("NEWSDEDUP_AI_FAILOVER_COOLDOWN_SECS", &cfg.FailoverCooldown); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// NewClassifierFromConfig builds the configured providers in order.
// Providers without credentials are skipped; ErrNoProviders is returned when
// none remain.
func NewClassifierFromConfig(cfg Config, opts ...ClassifierOption) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var providers []Provider
	var order []string
	for _, name := range cfg.ProviderOrder {
		switch name {
		case ProviderAnthropic:
			if len(cfg.AnthropicKeys) == 0 {
				continue
			}
			pool, err := NewKeyPool(cfg.AnthropicKeys, cfg.KeyResetInterval)
			if err != nil {
				return nil, err
			}
			p, err := NewAnthropicProvider(pool, cfg.AnthropicModel)
			if err != nil {
				return nil, fmt.Errorf("failed to create anthropic provider: %w", err)
			}
			providers = append(providers, p)
		case ProviderCohere:
			if cfg.CohereKey == "" {
				continue
			}
			p, err := NewCohereProvider(cfg.CohereKey, cfg.CohereModel, "")
			if err != nil {
				return nil, fmt.Errorf("failed to create cohere provider: %w", err)
			}
			providers = append(providers, p)
		}
		order = append(order, name)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	base := []ClassifierOption{
		WithRetryConfig(cfg.Retry),
		WithFailoverState(NewFailoverState(order, cfg.FailoverCooldown)),
	}
	return NewClassifier(providers, append(base, opts...)...)
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvSeconds parses a whole number of seconds from an environment variable
func parseEnvSeconds(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * time.Second
	return nil
}
