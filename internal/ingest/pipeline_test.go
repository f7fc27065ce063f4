package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/newsdedup/internal/ai"
	"github.com/steveyegge/newsdedup/internal/handoff"
	"github.com/steveyegge/newsdedup/internal/seencache"
	"github.com/steveyegge/newsdedup/internal/significance"
	"github.com/steveyegge/newsdedup/internal/types"
)

// scriptedChecker returns a verdict per URL
type scriptedChecker struct {
	mu       sync.Mutex
	verdicts map[string]*types.Verdict
	errs     map[string]error
	calls    int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (c *scriptedChecker) Check(ctx context.Context, a *types.IncomingArticle) (*types.Verdict, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if err := c.errs[a.URL]; err != nil {
		return nil, err
	}
	if v, ok := c.verdicts[a.URL]; ok {
		return v, nil
	}
	return &types.Verdict{Method: types.MethodNoSimilar, Outcome: types.OutcomeConfirmed}, nil
}

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	inserted []types.IncomingArticle
	updates  map[int64]types.ContentUpdate
	checks   map[int64]int
	failOn   string
}

func newMemStore() *memStore {
	return &memStore{nextID: 100, updates: map[int64]types.ContentUpdate{}, checks: map[int64]int{}}
}

func (s *memStore) InsertArticle(ctx context.Context, a *types.IncomingArticle) (*types.StoredArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.URL == s.failOn {
		return nil, errors.New("connection refused")
	}
	s.nextID++
	s.inserted = append(s.inserted, *a)
	return &types.StoredArticle{ID: s.nextID, Title: a.Title, URL: a.URL, Source: a.Source}, nil
}

func (s *memStore) UpdateContentFields(ctx context.Context, id int64, u types.ContentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[id] = u
	return nil
}

func (s *memStore) RecordDuplicateCheck(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[id]++
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	reqs []handoff.AnalysisRequest
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, req handoff.AnalysisRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reqs = append(p.reqs, req)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fakeArchiver struct {
	runID  string
	report any
}

func (a *fakeArchiver) Archive(ctx context.Context, runID string, report any) (string, error) {
	a.runID = runID
	a.report = report
	return "mem://" + runID, nil
}

func newClassifier(t *testing.T) *significance.Classifier {
	t.Helper()
	c, err := significance.New(significance.DefaultConfig())
	require.NoError(t, err)
	return c
}

func id(n int64) *int64 { return &n }

func duplicate(method types.Method, matched *types.StoredArticle, changed bool) *types.Verdict {
	return &types.Verdict{
		IsDuplicate:    true,
		MatchedID:      id(matched.ID),
		MatchedArticle: matched,
		ContentChanged: changed,
		Method:         method,
		Outcome:        types.OutcomeConfirmed,
	}
}

func TestPipeline_AppliesVerdicts(t *testing.T) {
	stored := &types.StoredArticle{ID: 1, Title: "Rule proposed", Summary: "The agency proposed a rule on staffing levels for the sector.", URL: "https://a.example/rule"}
	minor := &types.StoredArticle{ID: 2, Title: "Board meets", Summary: "The board met on Tuesday to discuss the budget for next year.", URL: "https://a.example/board"}
	same := &types.StoredArticle{ID: 3, Title: "Same", Summary: "Same", URL: "https://a.example/same"}

	checker := &scriptedChecker{verdicts: map[string]*types.Verdict{
		"https://a.example/rule":  duplicate(types.MethodURL, stored, true),
		"https://a.example/board": duplicate(types.MethodURL, minor, true),
		"https://b.example/same":  duplicate(types.MethodContentHash, same, false),
		"https://c.example/ai":    {Method: types.MethodAI, Outcome: types.OutcomeParseFailure},
	}}
	store := newMemStore()
	pub := &recordingPublisher{}
	arch := &fakeArchiver{}

	p, err := NewPipeline(checker, store, newClassifier(t),
		WithPublisher(pub),
		WithArchiver(arch),
		WithFailoverStats(func() ai.FailoverStats { return ai.FailoverStats{Current: "anthropic"} }),
	)
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), []types.IncomingArticle{
		{Title: "Brand new story", URL: "https://n.example/new", Source: "Wire"},
		{Title: "Rule finalized", Summary: "The agency finalized a rule on staffing levels for the sector.", URL: "https://a.example/rule"},
		{Title: "Board meets", Summary: "The board met on Tuesday to discuss the budget for next year!", URL: "https://a.example/board"},
		{Title: "Same", Summary: "Same", URL: "https://b.example/same"},
		{Title: "Unclear", URL: "https://c.example/ai"},
		{Title: "", URL: "https://bad.example"},
	})
	require.NoError(t, err)

	require.Len(t, rep.Results, 6)
	assert.Equal(t, ActionStored, rep.Results[0].Action)
	assert.Equal(t, ActionReanalyze, rep.Results[1].Action)
	assert.Equal(t, ActionPatched, rep.Results[2].Action)
	assert.Equal(t, ActionSkipped, rep.Results[3].Action)
	assert.Equal(t, ActionStored, rep.Results[4].Action, "fail-open verdicts store the article")
	assert.Equal(t, ActionInvalid, rep.Results[5].Action)

	assert.Equal(t, 6, rep.Processed)
	assert.Equal(t, 2, rep.Actions[ActionStored])
	assert.Equal(t, 1, rep.AIChecks)
	assert.Equal(t, 1, rep.AIFallbacks)
	assert.Equal(t, 2, rep.Methods[types.MethodURL])
	require.NotNil(t, rep.AIFailover)
	assert.Equal(t, "anthropic", rep.AIFailover.Current)

	// writes
	assert.Len(t, store.inserted, 2)
	assert.Contains(t, store.updates, int64(1))
	assert.Contains(t, store.updates, int64(2))
	assert.Equal(t, "Rule finalized", store.updates[1].Title)
	assert.NotEmpty(t, store.updates[1].ContentFingerprint)
	assert.Equal(t, 1, store.checks[3])

	// hand-offs: two new articles plus one significant update
	require.Len(t, pub.reqs, 3)
	var updates []handoff.AnalysisRequest
	for _, r := range pub.reqs {
		assert.Equal(t, rep.RunID, r.RunID)
		if r.Reason == handoff.ReasonSignificantUpdate {
			updates = append(updates, r)
		}
	}
	require.Len(t, updates, 1)
	assert.Equal(t, int64(1), updates[0].ArticleID)
	assert.Contains(t, updates[0].Reasons, "keyword:finalized")

	sig := rep.Results[1].Significance
	require.NotNil(t, sig)
	assert.True(t, sig.Significant)

	assert.Equal(t, rep.RunID, arch.runID)
	assert.Equal(t, "mem://"+rep.RunID, rep.ArchiveLocation)
}

func TestPipeline_StoreErrorIsIndeterminate(t *testing.T) {
	checker := &scriptedChecker{errs: map[string]error{
		"https://a.example/down": fmt.Errorf("url lookup: %w", errors.New("connection refused")),
	}}
	store := newMemStore()
	store.failOn = "https://a.example/insert-fails"
	pub := &recordingPublisher{}

	p, err := NewPipeline(checker, store, newClassifier(t), WithPublisher(pub))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), []types.IncomingArticle{
		{Title: "Down", URL: "https://a.example/down"},
		{Title: "Insert fails", URL: "https://a.example/insert-fails"},
		{Title: "Fine", URL: "https://a.example/fine"},
	})
	require.NoError(t, err, "per-article failures do not fail the run")

	assert.Equal(t, ActionFailed, rep.Results[0].Action)
	assert.Contains(t, rep.Results[0].Error, "connection refused")
	assert.Equal(t, ActionFailed, rep.Results[1].Action)
	assert.Equal(t, ActionStored, rep.Results[2].Action)
	assert.Equal(t, 2, rep.Failed())
	assert.Len(t, pub.reqs, 1)
}

func TestPipeline_PublishFailureKeepsArticle(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{err: errors.New("brokers down")}
	p, err := NewPipeline(&scriptedChecker{}, store, newClassifier(t), WithPublisher(pub))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), []types.IncomingArticle{{Title: "New", URL: "https://a.example/n"}})
	require.NoError(t, err)

	assert.Equal(t, ActionStored, rep.Results[0].Action)
	assert.Equal(t, "brokers down", rep.Results[0].PublishError)
	assert.Equal(t, 1, rep.PublishFailures)
	assert.Len(t, store.inserted, 1)
}

func TestPipeline_SeenCacheSkipsRefetch(t *testing.T) {
	checker := &scriptedChecker{}
	store := newMemStore()
	cache := seencache.NewMemory(time.Hour)

	p, err := NewPipeline(checker, store, newClassifier(t), WithSeenCache(cache), WithPublisher(&recordingPublisher{}))
	require.NoError(t, err)

	batch := []types.IncomingArticle{{Title: "Story", Summary: "v1", URL: "https://a.example/s"}}

	_, err = p.Run(context.Background(), batch)
	require.NoError(t, err)
	rep, err := p.Run(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, ActionSeen, rep.Results[0].Action)
	assert.Equal(t, 1, checker.calls)

	// an edit under the same identity runs the pipeline again
	batch[0].Summary = "v2"
	rep, err = p.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.NotEqual(t, ActionSeen, rep.Results[0].Action)
	assert.Equal(t, 2, checker.calls)
}

func TestPipeline_DryRunWritesNothing(t *testing.T) {
	stored := &types.StoredArticle{ID: 9, Title: "Old", Summary: "old text", URL: "https://a.example/x"}
	checker := &scriptedChecker{verdicts: map[string]*types.Verdict{
		"https://a.example/x": duplicate(types.MethodURL, stored, true),
	}}
	store := newMemStore()
	pub := &recordingPublisher{}
	arch := &fakeArchiver{}

	p, err := NewPipeline(checker, store, newClassifier(t), WithPublisher(pub), WithArchiver(arch), WithDryRun(true))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), []types.IncomingArticle{
		{Title: "New", URL: "https://a.example/new"},
		{Title: "Old", Summary: "old text, now urgent and much longer than before", URL: "https://a.example/x"},
	})
	require.NoError(t, err)

	assert.True(t, rep.DryRun)
	assert.Equal(t, ActionStored, rep.Results[0].Action)
	assert.Equal(t, ActionReanalyze, rep.Results[1].Action)
	assert.Empty(t, store.inserted)
	assert.Empty(t, store.updates)
	assert.Empty(t, pub.reqs)
	assert.Empty(t, arch.runID)
}

func TestPipeline_WorkerLimit(t *testing.T) {
	checker := &scriptedChecker{delay: 10 * time.Millisecond}
	p, err := NewPipeline(checker, newMemStore(), newClassifier(t), WithWorkers(3), WithPublisher(&recordingPublisher{}))
	require.NoError(t, err)

	articles := make([]types.IncomingArticle, 12)
	for i := range articles {
		articles[i] = types.IncomingArticle{Title: fmt.Sprintf("Story %d", i), URL: fmt.Sprintf("https://a.example/%d", i)}
	}
	rep, err := p.Run(context.Background(), articles)
	require.NoError(t, err)

	assert.Equal(t, 12, rep.Processed)
	assert.LessOrEqual(t, checker.maxSeen.Load(), int32(3))
}

func TestPipeline_CanceledContext(t *testing.T) {
	p, err := NewPipeline(&scriptedChecker{}, newMemStore(), newClassifier(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := p.Run(ctx, []types.IncomingArticle{{Title: "x", URL: "https://x.example"}})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Zero(t, rep.Actions[ActionStored])
}

func TestNewPipelineValidation(t *testing.T) {
	c := newClassifier(t)
	_, err := NewPipeline(nil, newMemStore(), c)
	assert.Error(t, err)
	_, err = NewPipeline(&scriptedChecker{}, nil, c)
	assert.Error(t, err)
	_, err = NewPipeline(&scriptedChecker{}, newMemStore(), nil)
	assert.Error(t, err)
}
