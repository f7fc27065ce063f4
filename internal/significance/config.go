package significance

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/steveyegge/newsdedup/internal/similarity"
)

// DefaultStatusKeywords are terms that mark a change in a story's status
var DefaultStatusKeywords = []string{
	"finalized", "finalised",
	"passed",
	"rejected",
	"delayed",
	"cancelled", "canceled",
	"amended",
	"breaking",
	"urgent",
}

// Config holds the update significance rules
type Config struct {
	// StatusKeywords trigger a significant result when newly present.
	// Inflected forms match ("passes" for "passed"); multi-word entries match
	// as phrases.
	StatusKeywords []string

	// LengthChangeThreshold is the relative summary length change above which
	// an update is significant. Default: 0.30
	LengthChangeThreshold float64

	// ShortSummaryRunes flags old summaries shorter than this many runes.
	// Informational only. Default: 80
	ShortSummaryRunes int
}

// DefaultConfig returns the default significance configuration
func DefaultConfig() Config {
	kw := make([]string, len(DefaultStatusKeywords))
	copy(kw, DefaultStatusKeywords)
	return Config{
		StatusKeywords:        kw,
		LengthChangeThreshold: 0.30,
		ShortSummaryRunes:     80,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if len(c.StatusKeywords) == 0 {
		return fmt.Errorf("status_keywords cannot be empty")
	}
	for _, k := range c.StatusKeywords {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("status_keywords cannot contain blank entries")
		}
		if similarity.Normalize(k) == "" {
			return fmt.Errorf("status_keyword %q has no letters or digits", k)
		}
	}
	if c.LengthChangeThreshold <= 0 || c.LengthChangeThreshold > 10 {
		return fmt.Errorf("length_change_threshold must be in (0, 10] (got %.2f)", c.LengthChangeThreshold)
	}
	if c.ShortSummaryRunes < 0 {
		return fmt.Errorf("short_summary_runes cannot be negative (got %d)", c.ShortSummaryRunes)
	}
	return nil
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - SIGNIFICANCE_KEYWORDS: comma-separated status keywords
//   - SIGNIFICANCE_LENGTH_CHANGE_THRESHOLD: relative length change (default: 0.30)
//   - SIGNIFICANCE_SHORT_SUMMARY_RUNES: short-summary flag cutoff (default: 80)
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if value := os.Getenv("SIGNIFICANCE_KEYWORDS"); value != "" {
		var kw []string
		for _, k := range strings.Split(value, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kw = append(kw, k)
			}
		}
		cfg.StatusKeywords = kw
	}
	if value := os.Getenv("SIGNIFICANCE_LENGTH_CHANGE_THRESHOLD"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid value for SIGNIFICANCE_LENGTH_CHANGE_THRESHOLD: %w", err)
		}
		cfg.LengthChangeThreshold = parsed
	}
	if value := os.Getenv("SIGNIFICANCE_SHORT_SUMMARY_RUNES"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return cfg, fmt.Errorf("invalid value for SIGNIFICANCE_SHORT_SUMMARY_RUNES: %w", err)
		}
		cfg.ShortSummaryRunes = parsed
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}
