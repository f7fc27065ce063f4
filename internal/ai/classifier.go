package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Classifier sends a prompt to the first healthy provider and fails over to the
// next one on error. From the caller's side it is a single call that returns
// text or an error.
type Classifier struct {
	providers map[string]Provider
	state     *FailoverState
	breakers  map[string]*CircuitBreaker
	retry     RetryConfig
	cost      CostTracker
	sem       *semaphore.Weighted
}

// ClassifierOption configures a Classifier
type ClassifierOption func(*Classifier)

// WithCostTracker gates calls on a token budget
func WithCostTracker(t CostTracker) ClassifierOption {
	return func(c *Classifier) { c.cost = t }
}

// WithRetryConfig overrides the retry and circuit breaker settings
func WithRetryConfig(cfg RetryConfig) ClassifierOption {
	return func(c *Classifier) { c.retry = cfg }
}

// WithFailoverState injects shared fail-over bookkeeping
func WithFailoverState(s *FailoverState) ClassifierOption {
	return func(c *Classifier) { c.state = s }
}

// NewClassifier creates a classifier over providers, in priority order
func NewClassifier(providers []Provider, opts ...ClassifierOption) (*Classifier, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	c := &Classifier{
		providers: make(map[string]Provider, len(providers)),
		breakers:  make(map[string]*CircuitBreaker, len(providers)),
		retry:     DefaultRetryConfig(),
	}

	order := make([]string, 0, len(providers))
	for _, p := range providers {
		name := p.Name()
		if _, dup := c.providers[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		c.providers[name] = p
		order = append(order, name)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.state == nil {
		c.state = NewFailoverState(order, 5*time.Minute)
	}
	if c.retry.CircuitBreakerEnabled {
		for _, name := range order {
			c.breakers[name] = NewCircuitBreaker(name, c.retry.FailureThreshold, c.retry.SuccessThreshold, c.retry.OpenTimeout)
		}
	}
	if c.retry.MaxConcurrentCalls > 0 {
		c.sem = semaphore.NewWeighted(int64(c.retry.MaxConcurrentCalls))
	}

	return c, nil
}

// Classify sends prompt to the providers in priority order and returns the
// first successful completion
func (c *Classifier) Classify(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for AI call slot: %w", err)
		}
		defer c.sem.Release(1)
	}

	if c.cost != nil {
		if ok, reason := c.cost.CanProceed(); !ok {
			return nil, fmt.Errorf("%w: %s", ErrBudgetExceeded, reason)
		}
	}

	candidates := c.state.Candidates()
	if len(candidates) == 0 {
		return nil, ErrNoProviders
	}

	var errs []error
	for _, name := range candidates {
		provider, ok := c.providers[name]
		if !ok {
			continue
		}

		var completion *Completion
		err := retryWithBackoff(ctx, c.retry, c.breakers[name], name, func(attemptCtx context.Context) error {
			c.state.RecordRequest(name)
			var callErr error
			completion, callErr = provider.Complete(attemptCtx, prompt, opts)
			return callErr
		})
		if err == nil {
			c.state.MarkSuccess(name)
			completion.Provider = name
			if c.cost != nil {
				if costErr := c.cost.RecordUsage(ctx, name, completion.InputTokens, completion.OutputTokens); costErr != nil {
					slog.Warn("failed to record AI usage", "provider", name, "error", costErr)
				}
			}
			return completion, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if ctx.Err() != nil {
			// our caller gave up, that says nothing about the provider
			return nil, errors.Join(append(errs, ctx.Err())...)
		}
		c.state.MarkFailed(name, err)
		slog.Warn("AI provider failed, trying next", "provider", name, "error", err)
	}

	if len(errs) == 0 {
		return nil, ErrNoProviders
	}
	return nil, errors.Join(errs...)
}

// Stats returns the fail-over snapshot
func (c *Classifier) Stats() FailoverStats {
	return c.state.Stats()
}

// BreakerState returns the circuit state for a provider
func (c *Classifier) BreakerState(name string) (CircuitState, bool) {
	b, ok := c.breakers[name]
	if !ok {
		return CircuitClosed, false
	}
	return b.State(), true
}
