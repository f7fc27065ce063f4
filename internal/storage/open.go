package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/steveyegge/newsdedup/internal/storage/postgres"
	"github.com/steveyegge/newsdedup/internal/storage/sqlite"
)

// DefaultSQLitePath is used when no DSN is configured
const DefaultSQLitePath = ".newsdedup/articles.db"

// Config holds database configuration
type Config struct {
	// DSN selects the backend:
	//   postgres://... or postgresql://...  PostgreSQL
	//   sqlite://path, path/to/file.db      SQLite
	//   :memory:                            in-memory SQLite (tests)
	DSN   string
	Retry RetryConfig
}

// DefaultConfig returns a config with sensible defaults.
// NEWSDEDUP_DB overrides the DSN.
func DefaultConfig() *Config {
	dsn := os.Getenv("NEWSDEDUP_DB")
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	return &Config{DSN: dsn, Retry: DefaultRetryConfig()}
}

// Backend names the store implementation a DSN selects
func Backend(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	default:
		return "sqlite"
	}
}

// Open creates the store the DSN selects, wrapped in a RetryingStore
func Open(ctx context.Context, cfg *Config) (*RetryingStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}

	var (
		inner ArticleStore
		err   error
	)
	switch Backend(dsn) {
	case "postgres":
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = dsn
		inner, err = postgres.New(ctx, pgCfg)
	default:
		inner, err = sqlite.New(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", Backend(dsn), err)
	}
	return NewRetryingStore(inner, retry), nil
}
