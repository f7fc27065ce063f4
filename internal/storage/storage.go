package storage

import (
	"context"
	"time"

	"github.com/steveyegge/newsdedup/internal/storage/postgres"
	"github.com/steveyegge/newsdedup/internal/storage/sqlite"
	"github.com/steveyegge/newsdedup/internal/types"
)

// ErrNotFound is returned when an article id does not exist
var ErrNotFound = types.ErrArticleNotFound

// ArticleStore defines the interface for article storage backends
type ArticleStore interface {
	// Lookups used by the duplicate arbiter. The Find* methods return
	// nil, nil when nothing matches.
	FindByURL(ctx context.Context, url string) (*types.StoredArticle, error)
	FindByContentFingerprint(ctx context.Context, fp string) (*types.StoredArticle, error)
	FindCandidates(ctx context.Context, title string, published time.Time, window time.Duration, limit int) ([]types.DuplicateCandidate, error)

	// Writes
	InsertArticle(ctx context.Context, article *types.IncomingArticle) (*types.StoredArticle, error)
	UpdateContentFields(ctx context.Context, id int64, update types.ContentUpdate) error
	RecordDuplicateCheck(ctx context.Context, id int64) error

	// Statistics
	GetDuplicateStats(ctx context.Context) (*types.DuplicateStats, error)

	// Lifecycle
	Close() error
}

var (
	_ ArticleStore = (*sqlite.SQLiteStorage)(nil)
	_ ArticleStore = (*postgres.PostgresStorage)(nil)
	_ ArticleStore = (*RetryingStore)(nil)
)
