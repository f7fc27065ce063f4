// Package ingest runs fetched articles through the duplicate arbiter and
// applies the verdicts: store new articles, count unchanged duplicates,
// patch edited ones and hand significant changes back for analysis.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/newsdedup/internal/ai"
	"github.com/steveyegge/newsdedup/internal/fingerprint"
	"github.com/steveyegge/newsdedup/internal/handoff"
	"github.com/steveyegge/newsdedup/internal/report"
	"github.com/steveyegge/newsdedup/internal/seencache"
	"github.com/steveyegge/newsdedup/internal/significance"
	"github.com/steveyegge/newsdedup/internal/types"
)

// DefaultWorkers is the default number of articles processed concurrently
const DefaultWorkers = 5

// Checker produces a duplicate verdict. *deduplication.Arbiter implements it.
type Checker interface {
	Check(ctx context.Context, article *types.IncomingArticle) (*types.Verdict, error)
}

// Store is the write side of the article store
type Store interface {
	InsertArticle(ctx context.Context, article *types.IncomingArticle) (*types.StoredArticle, error)
	UpdateContentFields(ctx context.Context, id int64, update types.ContentUpdate) error
	RecordDuplicateCheck(ctx context.Context, id int64) error
}

// SignificanceClassifier decides whether an edit matters
type SignificanceClassifier interface {
	Classify(old, updated significance.Version) significance.Result
}

// Pipeline processes batches of incoming articles
type Pipeline struct {
	checker      Checker
	store        Store
	significance SignificanceClassifier
	seen         seencache.Cache
	publisher    handoff.Publisher
	archiver     report.Archiver
	aiStats      func() ai.FailoverStats
	workers      int
	dryRun       bool
	now          func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSeenCache skips items whose identity and content were already processed
func WithSeenCache(c seencache.Cache) Option {
	return func(p *Pipeline) { p.seen = c }
}

// WithPublisher sets where analysis requests go (default: log only)
func WithPublisher(pub handoff.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithArchiver archives each run report
func WithArchiver(a report.Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithFailoverStats attaches the AI provider statistics to run reports
func WithFailoverStats(fn func() ai.FailoverStats) Option {
	return func(p *Pipeline) { p.aiStats = fn }
}

// WithWorkers sets the worker pool size
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithDryRun runs the arbiter but performs no writes or hand-offs
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) { p.dryRun = dryRun }
}

// NewPipeline creates a pipeline
func NewPipeline(checker Checker, store Store, classifier SignificanceClassifier, opts ...Option) (*Pipeline, error) {
	if checker == nil {
		return nil, fmt.Errorf("checker cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if classifier == nil {
		return nil, fmt.Errorf("significance classifier cannot be nil")
	}

	p := &Pipeline{
		checker:      checker,
		store:        store,
		significance: classifier,
		workers:      DefaultWorkers,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.publisher == nil {
		p.publisher = handoff.NewLogPublisher(nil)
	}
	return p, nil
}

// Run processes articles with a bounded worker pool. Per-article failures
// are recorded in the report; Run only returns an error when ctx ends.
func (p *Pipeline) Run(ctx context.Context, articles []types.IncomingArticle) (*RunReport, error) {
	runID := report.NewRunID()
	started := p.now()
	logger := slog.With("run_id", runID)
	logger.Info("ingest run started", "articles", len(articles), "workers", p.workers, "dry_run", p.dryRun)

	results := make([]ArticleResult, len(articles))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range articles {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			results[i] = p.process(ctx, runID, &articles[i])
			return nil
		})
	}
	_ = g.Wait()

	rep := newRunReport(runID, started, p.now(), p.dryRun, results)
	if p.aiStats != nil {
		stats := p.aiStats()
		rep.AIFailover = &stats
	}

	if p.archiver != nil && !p.dryRun {
		loc, err := p.archiver.Archive(ctx, runID, rep)
		if err != nil {
			logger.Warn("failed to archive run report", "error", err)
		} else {
			rep.ArchiveLocation = loc
		}
	}

	logger.Info("ingest run finished",
		"processed", rep.Processed,
		"stored", rep.Actions[ActionStored],
		"skipped", rep.Actions[ActionSkipped],
		"patched", rep.Actions[ActionPatched],
		"reanalyze", rep.Actions[ActionReanalyze],
		"failed", rep.Actions[ActionFailed],
		"ai_fallbacks", rep.AIFallbacks,
		"duration", rep.FinishedAt.Sub(rep.StartedAt))

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

func (p *Pipeline) process(ctx context.Context, runID string, article *types.IncomingArticle) ArticleResult {
	res := ArticleResult{Title: article.Title, URL: article.URL}

	if err := ctx.Err(); err != nil {
		res.Action = ActionFailed
		res.Error = err.Error()
		return res
	}
	if err := article.Validate(); err != nil {
		res.Action = ActionInvalid
		res.Error = err.Error()
		return res
	}

	identity := fingerprint.Identity(article.Title, article.URL)
	content := fingerprint.Content(article.Title, article.Summary)

	if p.seen != nil {
		seen, err := p.seen.Seen(ctx, identity, content)
		if err != nil {
			slog.Warn("seen cache lookup failed", "url", article.URL, "error", err)
		} else if seen {
			res.Action = ActionSeen
			return res
		}
	}

	verdict, err := p.checker.Check(ctx, article)
	if err != nil {
		// indeterminate: never treat a store failure as "not duplicate"
		res.Action = ActionFailed
		res.Error = err.Error()
		return res
	}
	res.Method = verdict.Method
	res.Outcome = verdict.Outcome
	res.MatchedID = verdict.MatchedID

	if err := p.apply(ctx, runID, article, content, verdict, &res); err != nil {
		slog.Error("failed to apply verdict", "url", article.URL, "method", verdict.Method, "error", err)
		res.Action = ActionFailed
		res.Error = err.Error()
		return res
	}

	if p.seen != nil && !p.dryRun {
		if err := p.seen.Remember(ctx, identity, content); err != nil {
			slog.Warn("seen cache write failed", "url", article.URL, "error", err)
		}
	}
	return res
}

func (p *Pipeline) apply(ctx context.Context, runID string, article *types.IncomingArticle, content string, verdict *types.Verdict, res *ArticleResult) error {
	switch {
	case !verdict.IsDuplicate:
		res.Action = ActionStored
		if p.dryRun {
			return nil
		}
		stored, err := p.store.InsertArticle(ctx, article)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		res.ArticleID = stored.ID
		p.publish(ctx, res, handoff.AnalysisRequest{
			Reason:    handoff.ReasonNew,
			ArticleID: stored.ID,
			Title:     stored.Title,
			URL:       stored.URL,
			Source:    stored.Source,
			RunID:     runID,
		})
		return nil

	case !verdict.NeedsSignificanceCheck():
		res.Action = ActionSkipped
		if p.dryRun || verdict.MatchedID == nil {
			return nil
		}
		if err := p.store.RecordDuplicateCheck(ctx, *verdict.MatchedID); err != nil {
			return fmt.Errorf("record duplicate check: %w", err)
		}
		return nil
	}

	matched := verdict.MatchedArticle
	sig := p.significance.Classify(
		significance.Version{Title: matched.Title, Summary: matched.Summary},
		significance.Version{Title: article.Title, Summary: article.Summary},
	)
	res.Significance = &sig
	res.ArticleID = matched.ID

	res.Action = ActionPatched
	if sig.Significant {
		res.Action = ActionReanalyze
	}
	if p.dryRun {
		return nil
	}

	err := p.store.UpdateContentFields(ctx, matched.ID, types.ContentUpdate{
		Title:              article.Title,
		Summary:            article.Summary,
		ContentFingerprint: content,
		UpdatedAt:          p.now(),
	})
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}

	if sig.Significant {
		reasons := make([]string, 0, len(sig.Reasons)+len(sig.AddedKeywords))
		for _, r := range sig.Reasons {
			reasons = append(reasons, string(r))
		}
		for _, k := range sig.AddedKeywords {
			reasons = append(reasons, "keyword:"+k)
		}
		p.publish(ctx, res, handoff.AnalysisRequest{
			Reason:    handoff.ReasonSignificantUpdate,
			ArticleID: matched.ID,
			Title:     article.Title,
			URL:       matched.URL,
			Source:    matched.Source,
			RunID:     runID,
			Reasons:   reasons,
		})
	}
	return nil
}

// publish hands off a request. The article is already written, so a
// failed hand-off is recorded on the result rather than failing it.
func (p *Pipeline) publish(ctx context.Context, res *ArticleResult, req handoff.AnalysisRequest) {
	if err := p.publisher.Publish(ctx, req); err != nil {
		slog.Warn("analysis hand-off failed", "article_id", req.ArticleID, "reason", req.Reason, "error", err)
		res.PublishError = err.Error()
	}
}
