package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steveyegge/newsdedup/internal/ai"
	"github.com/steveyegge/newsdedup/internal/cost"
	"github.com/steveyegge/newsdedup/internal/deduplication"
	"github.com/steveyegge/newsdedup/internal/storage"
)

// openStore opens the store named by --db, falling back to dsn and then
// $NEWSDEDUP_DB
func openStore(ctx context.Context, dsn string) (*storage.RetryingStore, error) {
	cfg := storage.DefaultConfig()
	if dsn != "" {
		cfg.DSN = dsn
	}
	if dbFlag != "" {
		cfg.DSN = dbFlag
	}
	slog.Debug("opening article store", "backend", storage.Backend(cfg.DSN))
	return storage.Open(ctx, cfg)
}

// engine bundles the arbiter with the AI pieces behind it
type engine struct {
	arbiter    *deduplication.Arbiter
	classifier *ai.Classifier // nil when no provider is configured
	tracker    *cost.Tracker  // nil when budgeting is disabled
}

func (e *engine) failoverStats() func() ai.FailoverStats {
	if e.classifier == nil {
		return nil
	}
	return e.classifier.Stats
}

// newEngine builds the arbiter from the environment. Missing AI
// credentials are not an error: strong candidates then resolve as
// ai_disabled.
func newEngine(store deduplication.ArticleStore) (*engine, error) {
	dedupCfg, err := deduplication.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	e := &engine{}
	if dedupCfg.AIEnabled {
		e.classifier, e.tracker, err = newClassifier()
		if err != nil {
			return nil, err
		}
	}

	var classifier deduplication.Classifier
	if e.classifier != nil {
		classifier = e.classifier
	}
	e.arbiter, err = deduplication.NewArbiter(store, classifier, dedupCfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func newClassifier() (*ai.Classifier, *cost.Tracker, error) {
	aiCfg, err := ai.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if !aiCfg.HasCredentials() {
		slog.Warn("no AI provider credentials set; AI arbitration disabled",
			"hint", "set ANTHROPIC_API_KEY or COHERE_API_KEY")
		return nil, nil, nil
	}

	var opts []ai.ClassifierOption
	var tracker *cost.Tracker
	costCfg := cost.LoadFromEnv()
	if costCfg.Enabled {
		tracker, err = cost.NewTracker(costCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize cost tracker: %w", err)
		}
		opts = append(opts, ai.WithCostTracker(tracker))
	}

	classifier, err := ai.NewClassifierFromConfig(aiCfg, opts...)
	if errors.Is(err, ai.ErrNoProviders) {
		slog.Warn("configured AI providers have no credentials; AI arbitration disabled",
			"providers", aiCfg.ProviderOrder)
		return nil, tracker, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return classifier, tracker, nil
}
