package deduplication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/newsdedup/internal/ai"
	"github.com/steveyegge/newsdedup/internal/fingerprint"
	"github.com/steveyegge/newsdedup/internal/types"
)

// ErrInvalidArticle is returned for articles missing a title or URL
var ErrInvalidArticle = errors.New("invalid article")

// ArticleStore is the read side of the article store the arbiter needs
type ArticleStore interface {
	// FindByURL returns nil, nil when no article has the URL
	FindByURL(ctx context.Context, url string) (*types.StoredArticle, error)
	// FindByContentFingerprint returns nil, nil when no article has the fingerprint
	FindByContentFingerprint(ctx context.Context, fp string) (*types.StoredArticle, error)
	// FindCandidates returns articles published within ±window of published,
	// most similar title first, at most limit
	FindCandidates(ctx context.Context, title string, published time.Time, window time.Duration, limit int) ([]types.DuplicateCandidate, error)
}

// Classifier answers the Stage 4 prompt. *ai.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, prompt string, opts ai.CompletionOptions) (*ai.Completion, error)
}

// Deduplicator checks one article against the store
type Deduplicator interface {
	// Check runs the four arbitration stages and returns a verdict.
	// Only store failures are returned as errors; classifier trouble
	// becomes a not-duplicate verdict with a fallback Outcome.
	Check(ctx context.Context, article *types.IncomingArticle) (*types.Verdict, error)
}

// Arbiter is the four-stage duplicate arbiter. It is safe for concurrent use;
// each Check is independent.
type Arbiter struct {
	store      ArticleStore
	classifier Classifier
	config     Config
	stats      *Stats
}

// Compile-time check that Arbiter implements Deduplicator
var _ Deduplicator = (*Arbiter)(nil)

// NewArbiter creates an arbiter. classifier may be nil, in which case Stage 4
// behaves as if AI arbitration were disabled.
func NewArbiter(store ArticleStore, classifier Classifier, config Config) (*Arbiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Arbiter{
		store:      store,
		classifier: classifier,
		config:     config,
		stats:      newStats(),
	}, nil
}

// Config returns the arbiter configuration
func (a *Arbiter) Config() Config {
	return a.config
}

// Stats returns a snapshot of the arbiter's counters
func (a *Arbiter) Stats() StatsSnapshot {
	return a.stats.Snapshot()
}

// Check implements Deduplicator
func (a *Arbiter) Check(ctx context.Context, article *types.IncomingArticle) (*types.Verdict, error) {
	if article == nil {
		return nil, fmt.Errorf("%w: article cannot be nil", ErrInvalidArticle)
	}
	if err := article.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArticle, err)
	}

	a.stats.checks.Add(1)

	verdict, err := a.check(ctx, article)
	if err != nil {
		a.stats.storeErrors.Add(1)
		slog.Error("duplicate check failed", "url", article.URL, "error", err)
		return nil, err
	}

	a.stats.recordVerdict(verdict)
	slog.Debug("duplicate check complete",
		"url", article.URL,
		"method", verdict.Method,
		"outcome", verdict.Outcome,
		"is_duplicate", verdict.IsDuplicate,
		"stages", verdict.Stages)
	return verdict, nil
}

func (a *Arbiter) check(ctx context.Context, article *types.IncomingArticle) (*types.Verdict, error) {
	contentFP := fingerprint.Content(article.Title, article.Summary)

	// Stage 1: exact URL
	byURL, err := a.store.FindByURL(ctx, article.URL)
	if err != nil {
		return nil, fmt.Errorf("url lookup: %w", err)
	}
	if byURL != nil {
		return &types.Verdict{
			IsDuplicate:    true,
			MatchedID:      &byURL.ID,
			MatchedArticle: byURL,
			ContentChanged: byURL.ContentFingerprint != contentFP,
			Method:         types.MethodURL,
			Outcome:        types.OutcomeConfirmed,
			Stages:         []string{types.StageURL},
		}, nil
	}

	// Stage 2: identical content under another URL
	byFP, err := a.store.FindByContentFingerprint(ctx, contentFP)
	if err != nil {
		return nil, fmt.Errorf("content fingerprint lookup: %w", err)
	}
	if byFP != nil {
		return &types.Verdict{
			IsDuplicate:    true,
			MatchedID:      &byFP.ID,
			MatchedArticle: byFP,
			ContentChanged: false,
			Method:         types.MethodContentHash,
			Outcome:        types.OutcomeConfirmed,
			Stages:         []string{types.StageContentHash},
		}, nil
	}

	// Stage 3: time-windowed fuzzy candidates
	candidates, err := a.store.FindCandidates(ctx, article.Title, article.PublishedOrNow(), a.config.DateWindow, a.config.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}
	if len(candidates) > a.config.MaxCandidates {
		candidates = candidates[:a.config.MaxCandidates]
	}
	if len(candidates) == 0 {
		return &types.Verdict{
			Method:  types.MethodNoSimilar,
			Outcome: types.OutcomeConfirmed,
			Stages:  []string{types.StageNoCandidates},
		}, nil
	}

	strong := make([]types.DuplicateCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.TitleSimilarity >= a.config.TitleSimilarityThreshold {
			strong = append(strong, c)
		}
	}
	if len(strong) == 0 {
		return &types.Verdict{
			Method:            types.MethodLowSimilarity,
			Outcome:           types.OutcomeConfirmed,
			CandidatesChecked: len(candidates),
			Stages:            []string{types.StageFoundCandidates},
		}, nil
	}

	// Stage 4: AI arbitration over the strong candidates only
	verdict := a.arbitrate(ctx, article, strong)
	verdict.CandidatesChecked = len(strong)
	verdict.Stages = []string{types.StageFoundCandidates, types.StageAICheck}
	return verdict, nil
}
