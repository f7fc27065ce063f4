package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider calls the Messages API, rotating keys through a KeyPool
type AnthropicProvider struct {
	pool    *KeyPool
	clients []anthropic.Client
	model   string
}

// NewAnthropicProvider creates a provider with one SDK client per pooled key.
// SDK-level retries are disabled; the Classifier owns retry policy.
func NewAnthropicProvider(pool *KeyPool, model string, opts ...option.RequestOption) (*AnthropicProvider, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, ErrNoKeys
	}
	if model == "" {
		model = GetDefaultModel()
	}

	clients := make([]anthropic.Client, pool.Len())
	for i, key := range pool.keys {
		clientOpts := append([]option.RequestOption{
			option.WithAPIKey(key),
			option.WithMaxRetries(0),
		}, opts...)
		clients[i] = anthropic.NewClient(clientOpts...)
	}

	return &AnthropicProvider{pool: pool, clients: clients, model: model}, nil
}

// Name implements Provider
func (p *AnthropicProvider) Name() string {
	return ProviderAnthropic
}

// Complete implements Provider
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	// A revoked or exhausted key moves on to the next healthy key within the
	// same call. Each key is tried at most once per call.
	var (
		resp *anthropic.Message
		err  error
	)
	tried := make(map[int]bool, p.pool.Len())
	for {
		_, idx := p.pool.Next()
		if tried[idx] {
			break
		}
		tried[idx] = true

		resp, err = p.clients[idx].Messages.New(ctx, params)
		if err == nil {
			p.pool.MarkSuccess(idx)
			break
		}
		if !isKeyError(err) {
			break
		}
		p.pool.MarkFailed(idx)
		if ctx.Err() != nil || p.pool.Healthy() == 0 {
			break
		}
	}
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{
				Provider:   ProviderAnthropic,
				StatusCode: apiErr.StatusCode,
				Message:    truncate(apiErr.Error(), 300),
			}
		}
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("anthropic returned no text content")
	}

	return &Completion{
		Text:         text.String(),
		Provider:     ProviderAnthropic,
		Model:        string(resp.Model),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// isKeyError reports whether err is tied to the API key rather than the request
func isKeyError(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case 401, 403, 429:
		return true
	}
	return false
}
