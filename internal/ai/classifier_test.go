package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns scripted results, one per call; the last one repeats
type fakeProvider struct {
	mu      sync.Mutex
	name    string
	results []fakeResult
	calls   int
	prompts []string
	opts    []CompletionOptions
}

type fakeResult struct {
	text string
	err  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	r := f.results[min(f.calls, len(f.results)-1)]
	f.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &Completion{Text: r.text, InputTokens: 100, OutputTokens: 20}, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCost struct {
	allow    bool
	reason   string
	recorded []string
	in, out  int64
}

func (f *fakeCost) CanProceed() (bool, string) { return f.allow, f.reason }

func (f *fakeCost) RecordUsage(ctx context.Context, provider string, in, out int64) error {
	f.recorded = append(f.recorded, provider)
	f.in += in
	f.out += out
	return nil
}

func testRetry() RetryConfig {
	cfg := fastRetryConfig()
	cfg.MaxRetries = 1
	return cfg
}

func TestNewClassifier_Validation(t *testing.T) {
	_, err := NewClassifier(nil)
	assert.ErrorIs(t, err, ErrNoProviders)

	_, err = NewClassifier([]Provider{
		&fakeProvider{name: "a", results: []fakeResult{{text: "x"}}},
		&fakeProvider{name: "a", results: []fakeResult{{text: "x"}}},
	})
	assert.Error(t, err)
}

func TestClassifier_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", results: []fakeResult{{text: "ok"}}}
	secondary := &fakeProvider{name: "cohere", results: []fakeResult{{text: "unused"}}}
	cost := &fakeCost{allow: true}

	c, err := NewClassifier([]Provider{primary, secondary}, WithRetryConfig(testRetry()), WithCostTracker(cost))
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), "prompt", CompletionOptions{MaxTokens: 500, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, 1, primary.Calls())
	assert.Zero(t, secondary.Calls())
	assert.Equal(t, 500, primary.opts[0].MaxTokens)
	assert.Equal(t, 0.1, primary.opts[0].Temperature)

	assert.Equal(t, []string{"anthropic"}, cost.recorded)
	assert.Equal(t, int64(100), cost.in)
	assert.Equal(t, "anthropic", c.Stats().Current)
}

func TestClassifier_FailsOverToSecondary(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", results: []fakeResult{{err: &StatusError{Provider: "anthropic", StatusCode: 503}}}}
	secondary := &fakeProvider{name: "cohere", results: []fakeResult{{text: "from cohere"}}}

	c, err := NewClassifier([]Provider{primary, secondary}, WithRetryConfig(testRetry()))
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), "prompt", CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from cohere", got.Text)
	assert.Equal(t, "cohere", got.Provider)
	assert.Equal(t, 2, primary.Calls(), "one retry before failing over")

	stats := c.Stats()
	assert.True(t, stats.Providers[0].Failed)
	assert.Equal(t, int64(2), stats.Providers[0].Requests)
	assert.Equal(t, "cohere", stats.Current)

	// benched primary is skipped on the next call
	_, err = c.Classify(context.Background(), "prompt", CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, 2, secondary.Calls())
}

func TestClassifier_NonRetriableFailsOverImmediately(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", results: []fakeResult{{err: &StatusError{Provider: "anthropic", StatusCode: 401}}}}
	secondary := &fakeProvider{name: "cohere", results: []fakeResult{{text: "ok"}}}

	c, err := NewClassifier([]Provider{primary, secondary}, WithRetryConfig(testRetry()))
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), "prompt", CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.Calls())
}

func TestClassifier_AllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", results: []fakeResult{{err: errors.New("invalid request")}}}
	secondary := &fakeProvider{name: "cohere", results: []fakeResult{{err: errors.New("bad input")}}}

	c, err := NewClassifier([]Provider{primary, secondary}, WithRetryConfig(testRetry()))
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), "prompt", CompletionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: invalid request")
	assert.Contains(t, err.Error(), "cohere: bad input")

	// both benched now
	_, err = c.Classify(context.Background(), "prompt", CompletionOptions{})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestClassifier_BudgetExceeded(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", results: []fakeResult{{text: "ok"}}}
	cost := &fakeCost{allow: false, reason: "hourly token budget exhausted"}

	c, err := NewClassifier([]Provider{primary}, WithRetryConfig(testRetry()), WithCostTracker(cost))
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), "prompt", CompletionOptions{})
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "hourly token budget exhausted")
	assert.Zero(t, primary.Calls())
}

func TestClassifier_CanceledContextDoesNotBenchProvider(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &fakeProvider{name: "anthropic", results: []fakeResult{{err: errors.New("invalid request")}}}

	cfg := testRetry()
	cfg.MaxConcurrentCalls = 0
	c, err := NewClassifier([]Provider{primary}, WithRetryConfig(cfg))
	require.NoError(t, err)

	cancel()
	_, err = c.Classify(ctx, "prompt", CompletionOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Stats().Providers[0].Failed)
}

func TestClassifier_InjectedFailoverState(t *testing.T) {
	state := NewFailoverState([]string{"anthropic", "cohere"}, time.Hour)
	state.MarkFailed("anthropic", errors.New("benched elsewhere"))

	primary := &fakeProvider{name: "anthropic", results: []fakeResult{{text: "primary"}}}
	secondary := &fakeProvider{name: "cohere", results: []fakeResult{{text: "secondary"}}}

	c, err := NewClassifier([]Provider{primary, secondary}, WithRetryConfig(testRetry()), WithFailoverState(state))
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), "prompt", CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "secondary", got.Text)
	assert.Zero(t, primary.Calls())
}

func TestClassifier_ConcurrencyCap(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	p := &blockingProvider{
		enter: func() {
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
	}

	cfg := testRetry()
	cfg.MaxConcurrentCalls = 2
	c, err := NewClassifier([]Provider{p}, WithRetryConfig(cfg))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Classify(context.Background(), "prompt", CompletionOptions{})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 2)
}

type blockingProvider struct {
	enter func()
}

func (b *blockingProvider) Name() string { return "blocking" }

func (b *blockingProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	b.enter()
	return &Completion{Text: "ok"}, nil
}
