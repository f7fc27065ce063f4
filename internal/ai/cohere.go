package ai

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"
)

// CohereProvider calls the Cohere chat API. It is the secondary provider.
type CohereProvider struct {
	client *cohereclient.Client
	model  string
}

// NewCohereProvider creates a Cohere provider. baseURL may be empty.
func NewCohereProvider(apiKey, model, baseURL string) (*CohereProvider, error) {
	if apiKey == "" {
		return nil, errors.New("cohere API key is required")
	}
	if model == "" {
		model = ModelCohereCommand
	}

	// HTTP/1.1 only, Cohere's edge has been flaky over HTTP/2
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}

	return &CohereProvider{client: newCohereClient(apiKey, baseURL, httpClient), model: model}, nil
}

func newCohereClient(apiKey, baseURL string, httpClient *http.Client) *cohereclient.Client {
	if baseURL != "" {
		return cohereclient.NewClient(
			cohereclient.WithToken(apiKey),
			cohereclient.WithHTTPClient(httpClient),
			cohereclient.WithBaseURL(baseURL),
		)
	}
	return cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
}

// Name implements Provider
func (p *CohereProvider) Name() string {
	return ProviderCohere
}

// Complete implements Provider
func (p *CohereProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	model := opts.Model
	if model == "" || strings.HasPrefix(model, "claude") {
		model = p.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	temperature := opts.Temperature

	resp, err := p.client.Chat(ctx, &cohere.ChatRequest{
		Message:     prompt,
		Model:       &model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var apiErr *core.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{
				Provider:   ProviderCohere,
				StatusCode: apiErr.StatusCode,
				Message:    truncate(apiErr.Error(), 300),
			}
		}
		return nil, fmt.Errorf("cohere chat error: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, errors.New("cohere chat returned empty response")
	}

	out := &Completion{Text: resp.Text, Provider: ProviderCohere, Model: model}
	if resp.Meta != nil && resp.Meta.BilledUnits != nil {
		if in := resp.Meta.BilledUnits.InputTokens; in != nil {
			out.InputTokens = int64(*in)
		}
		if o := resp.Meta.BilledUnits.OutputTokens; o != nil {
			out.OutputTokens = int64(*o)
		}
	}
	return out, nil
}
