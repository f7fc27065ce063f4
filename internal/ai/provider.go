// Package ai wraps the external LLM providers used for duplicate arbitration.
//
// A Classifier holds providers in priority order and fails over between
// them. Fail-over bookkeeping lives in a FailoverState and API-key rotation
// in a KeyPool; both are constructed once per process and injected, so tests
// can build isolated instances.
package ai

import (
	"context"
	"errors"
	"os"
)

// Model constants
const (
	// ModelSonnet is the high-end Anthropic model
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient Anthropic model. Duplicate arbitration is a short
	// structured answer, so it is the default.
	ModelHaiku = "claude-3-5-haiku-20241022"

	// ModelCohereCommand is the default Cohere chat model
	ModelCohereCommand = "command-r-08-2024"
)

// Provider names
const (
	ProviderAnthropic = "anthropic"
	ProviderCohere    = "cohere"
)

// GetDefaultModel returns the Anthropic model, checking NEWSDEDUP_MODEL_DEFAULT first
func GetDefaultModel() string {
	if model := os.Getenv("NEWSDEDUP_MODEL_DEFAULT"); model != "" {
		return model
	}
	return ModelHaiku
}

// ErrNoProviders is returned when no provider is configured or all are benched
var ErrNoProviders = errors.New("no AI providers available")

// ErrBudgetExceeded is returned when the cost tracker refuses a call
var ErrBudgetExceeded = errors.New("AI budget exceeded")

// CompletionOptions tunes a single completion request
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
	Model       string // Provider default when empty
}

// Completion is the text returned by a provider
type Completion struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Provider is one upstream LLM API
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error)
}

// CostTracker gates calls on a token budget
type CostTracker interface {
	// CanProceed checks if another call fits in the budget
	CanProceed() (bool, string)
	// RecordUsage records the tokens spent by one call
	RecordUsage(ctx context.Context, provider string, inputTokens, outputTokens int64) error
}
