package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/steveyegge/newsdedup/internal/fingerprint"
	"github.com/steveyegge/newsdedup/internal/similarity"
	"github.com/steveyegge/newsdedup/internal/types"
)

// CandidateFloor is the minimum title similarity a row needs to be returned
// as a candidate
const CandidateFloor = 0.3

var articleColumns = []string{
	"id", "external_id", "title", "summary", "url", "source", "content_hash",
	"published_date", "created_at", "updated_at", "last_content_update", "duplicate_check_count",
}

// FindByURL returns the article stored under url, or nil
func (s *SQLiteStorage) FindByURL(ctx context.Context, url string) (*types.StoredArticle, error) {
	return s.findOne(ctx, sq.Eq{"url": url})
}

// FindByContentFingerprint returns an article with the fingerprint, or nil
func (s *SQLiteStorage) FindByContentFingerprint(ctx context.Context, fp string) (*types.StoredArticle, error) {
	return s.findOne(ctx, sq.Eq{"content_hash": fp})
}

// GetArticle returns the article with id or types.ErrArticleNotFound
func (s *SQLiteStorage) GetArticle(ctx context.Context, id int64) (*types.StoredArticle, error) {
	a, err := s.findOne(ctx, sq.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %d", types.ErrArticleNotFound, id)
	}
	return a, nil
}

func (s *SQLiteStorage) findOne(ctx context.Context, where sq.Eq) (*types.StoredArticle, error) {
	query, args, err := s.sb.Select(articleColumns...).
		From("articles").
		Where(where).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}
	return a, nil
}

// FindCandidates scores every article published within ±window with the
// Levenshtein title similarity. SQLite has no trigram index, so ranking
// happens here rather than in SQL.
func (s *SQLiteStorage) FindCandidates(ctx context.Context, title string, published time.Time, window time.Duration, limit int) ([]types.DuplicateCandidate, error) {
	if limit <= 0 {
		return []types.DuplicateCandidate{}, nil
	}

	query, args, err := s.sb.Select(articleColumns...).
		From("articles").
		Where(sq.GtOrEq{"published_date": toMillis(published.Add(-window))}).
		Where(sq.LtOrEq{"published_date": toMillis(published.Add(window))}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := []types.DuplicateCandidate{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		score := similarity.Similarity(title, a.Title)
		if score <= CandidateFloor {
			continue
		}
		candidates = append(candidates, types.DuplicateCandidate{Article: *a, TitleSimilarity: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].TitleSimilarity != candidates[j].TitleSimilarity {
			return candidates[i].TitleSimilarity > candidates[j].TitleSimilarity
		}
		return candidates[i].Article.PublishedDate.After(candidates[j].Article.PublishedDate)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// InsertArticle stores a new article, or refreshes the row that already has
// the same identity fingerprint.
func (s *SQLiteStorage) InsertArticle(ctx context.Context, article *types.IncomingArticle) (*types.StoredArticle, error) {
	now := toMillis(time.Now())
	externalID := fingerprint.Identity(article.Title, article.URL)

	query, args, err := s.sb.Insert("articles").
		Columns("external_id", "title", "summary", "url", "source", "content_hash", "published_date", "created_at", "updated_at").
		Values(
			externalID,
			article.Title,
			article.Summary,
			article.URL,
			article.Source,
			fingerprint.Content(article.Title, article.Summary),
			toMillis(article.PublishedOrNow()),
			now,
			now,
		).
		Suffix(`ON CONFLICT (external_id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			source = excluded.source,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
		RETURNING id`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}
	return s.GetArticle(ctx, id)
}

// UpdateContentFields patches title and summary after a content change.
// Empty fields keep their stored value, and content_hash always describes the
// resulting title and summary.
func (s *SQLiteStorage) UpdateContentFields(ctx context.Context, id int64, update types.ContentUpdate) error {
	at := update.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.sb.Select("title", "summary").From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	var title, summary string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&title, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", types.ErrArticleNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read article %d: %w", id, err)
	}
	title, summary, fp := update.Merge(title, summary, fingerprint.Content)

	query, args, err = s.sb.Update("articles").
		Set("title", title).
		Set("summary", summary).
		Set("content_hash", fp).
		Set("last_content_update", toMillis(at)).
		Set("duplicate_check_count", sq.Expr("duplicate_check_count + 1")).
		Set("updated_at", toMillis(time.Now())).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update article %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update of article %d: %w", id, err)
	}
	return nil
}

// RecordDuplicateCheck bumps duplicate_check_count for an unchanged duplicate
func (s *SQLiteStorage) RecordDuplicateCheck(ctx context.Context, id int64) error {
	b := s.sb.Update("articles").
		Set("duplicate_check_count", sq.Expr("duplicate_check_count + 1")).
		Where(sq.Eq{"id": id})
	return s.execOne(ctx, b, id)
}

func (s *SQLiteStorage) execOne(ctx context.Context, b sq.UpdateBuilder, id int64) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update article %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", types.ErrArticleNotFound, id)
	}
	return nil
}

// GetDuplicateStats summarizes the store
func (s *SQLiteStorage) GetDuplicateStats(ctx context.Context) (*types.DuplicateStats, error) {
	query, args, err := s.sb.Select(
		"COUNT(*)",
		"COUNT(DISTINCT content_hash)",
		"COALESCE(SUM(duplicate_check_count), 0)",
		"MAX(last_content_update)",
	).From("articles").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var (
		stats      types.DuplicateStats
		lastUpdate sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalArticles,
		&stats.UniqueContentFingerprint,
		&stats.TotalDuplicateChecks,
		&lastUpdate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate stats: %w", err)
	}
	stats.PotentialDuplicates = stats.TotalArticles - stats.UniqueContentFingerprint
	if lastUpdate.Valid {
		t := fromMillis(lastUpdate.Int64)
		stats.MostRecentContentUpdate = &t
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*types.StoredArticle, error) {
	var (
		a                           types.StoredArticle
		published, created, updated int64
		lastUpdate                  sql.NullInt64
	)
	err := row.Scan(
		&a.ID, &a.ExternalID, &a.Title, &a.Summary, &a.URL, &a.Source, &a.ContentFingerprint,
		&published, &created, &updated, &lastUpdate, &a.DuplicateCheckCount,
	)
	if err != nil {
		return nil, err
	}
	a.PublishedDate = fromMillis(published)
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	if lastUpdate.Valid {
		t := fromMillis(lastUpdate.Int64)
		a.LastContentUpdate = &t
	}
	return &a, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
