package deduplication

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the duplicate arbiter
type Config struct {
	// AIEnabled turns Stage 4 arbitration on. When off, strong candidates
	// resolve to a not-duplicate verdict tagged ai_disabled.
	// Default: true
	AIEnabled bool

	// TitleSimilarityThreshold is the minimum candidate title similarity (0.0-1.0)
	// that is worth an AI call. This is the main cost-control gate.
	// Default: 0.7
	TitleSimilarityThreshold float64

	// DateWindow bounds the candidate search to ±window around the incoming
	// article's published date
	// Default: 7 days
	DateWindow time.Duration

	// ExcerptChars is how many characters of each summary go into the AI prompt
	// Default: 500
	ExcerptChars int

	// MaxCandidates caps how many candidates are fetched and shown to the AI
	// Default: 5
	MaxCandidates int

	// MaxTokens and Temperature are passed to the classifier
	// Defaults: 500 and 0.1 (short, near-deterministic JSON answer)
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns the default arbiter configuration
func DefaultConfig() Config {
	return Config{
		AIEnabled:                true,
		TitleSimilarityThreshold: 0.7,
		DateWindow:               7 * 24 * time.Hour,
		ExcerptChars:             500,
		MaxCandidates:            5,
		MaxTokens:                500,
		Temperature:              0.1,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.TitleSimilarityThreshold < 0.0 || c.TitleSimilarityThreshold > 1.0 {
		return fmt.Errorf("title_similarity_threshold must be between 0.0 and 1.0 (got %.2f)",
			c.TitleSimilarityThreshold)
	}
	if c.DateWindow <= 0 {
		return fmt.Errorf("date_window must be positive (got %v)", c.DateWindow)
	}
	if c.DateWindow > 90*24*time.Hour {
		return fmt.Errorf("date_window too large (got %v, max 90 days)", c.DateWindow)
	}
	if c.ExcerptChars <= 0 {
		return fmt.Errorf("excerpt_chars must be positive (got %d)", c.ExcerptChars)
	}
	if c.ExcerptChars > 5000 {
		return fmt.Errorf("excerpt_chars too large (got %d, max 5000)", c.ExcerptChars)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive (got %d)", c.MaxCandidates)
	}
	if c.MaxCandidates > 50 {
		return fmt.Errorf("max_candidates too large (got %d, max 50)", c.MaxCandidates)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive (got %d)", c.MaxTokens)
	}
	if c.Temperature < 0.0 || c.Temperature > 1.0 {
		return fmt.Errorf("temperature must be between 0.0 and 1.0 (got %.2f)", c.Temperature)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{AI: %t, Threshold: %.2f, Window: %v, ExcerptChars: %d, MaxCandidates: %d, "+
			"MaxTokens: %d, Temperature: %.2f}",
		c.AIEnabled, c.TitleSimilarityThreshold, c.DateWindow, c.ExcerptChars, c.MaxCandidates,
		c.MaxTokens, c.Temperature,
	)
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - DEDUP_AI_ENABLED: Enable AI arbitration (default: true)
//   - DEDUP_TITLE_SIMILARITY_THRESHOLD: Minimum title similarity for AI arbitration (default: 0.7)
//   - DEDUP_DATE_WINDOW_DAYS: Candidate search window in days (default: 7)
//   - DEDUP_CONTENT_CHARS: Summary excerpt length in the AI prompt (default: 500)
//   - DEDUP_MAX_CANDIDATES: Maximum candidates considered (default: 5)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvBool("DEDUP_AI_ENABLED", &cfg.AIEnabled); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("DEDUP_TITLE_SIMILARITY_THRESHOLD", &cfg.TitleSimilarityThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("DEDUP_DATE_WINDOW_DAYS", &cfg.DateWindow, 24*time.Hour); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUP_CONTENT_CHARS", &cfg.ExcerptChars); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUP_MAX_CANDIDATES", &cfg.MaxCandidates); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}

	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
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

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
// The multiplier is used to convert the numeric value to a duration
// (e.g., for days: multiplier = 24*time.Hour)
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
