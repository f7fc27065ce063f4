package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/steveyegge/newsdedup/internal/fingerprint"
	"github.com/steveyegge/newsdedup/internal/types"
)

const articleColumns = `id, external_id, title, summary, url, source, content_hash,
	published_date, created_at, updated_at, last_content_update, duplicate_check_count`

// FindByURL returns the article stored under url, or nil
func (s *PostgresStorage) FindByURL(ctx context.Context, url string) (*types.StoredArticle, error) {
	return s.findOne(ctx, `SELECT `+articleColumns+` FROM articles WHERE url = $1 ORDER BY id LIMIT 1`, url)
}

// FindByContentFingerprint returns an article with the fingerprint, or nil
func (s *PostgresStorage) FindByContentFingerprint(ctx context.Context, fp string) (*types.StoredArticle, error) {
	return s.findOne(ctx, `SELECT `+articleColumns+` FROM articles WHERE content_hash = $1 ORDER BY id LIMIT 1`, fp)
}

// GetArticle returns the article with id or types.ErrArticleNotFound
func (s *PostgresStorage) GetArticle(ctx context.Context, id int64) (*types.StoredArticle, error) {
	a, err := s.findOne(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %d", types.ErrArticleNotFound, id)
	}
	return a, nil
}

func (s *PostgresStorage) findOne(ctx context.Context, query string, arg any) (*types.StoredArticle, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := scanArticle(s.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}
	return a, nil
}

// FindCandidates returns articles within ±window of published whose title
// trigram similarity exceeds 0.3, most similar first.
func (s *PostgresStorage) FindCandidates(ctx context.Context, title string, published time.Time, window time.Duration, limit int) ([]types.DuplicateCandidate, error) {
	if limit <= 0 {
		return []types.DuplicateCandidate{}, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+articleColumns+`, similarity(title, $1) AS title_similarity
		FROM articles
		WHERE published_date BETWEEN $2 AND $3
		  AND similarity(title, $1) > 0.3
		ORDER BY title_similarity DESC, published_date DESC
		LIMIT $4
	`, title, published.Add(-window), published.Add(window), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	candidates := []types.DuplicateCandidate{}
	for rows.Next() {
		var (
			a          types.StoredArticle
			lastUpdate *time.Time
			sim        float32
		)
		err := rows.Scan(
			&a.ID, &a.ExternalID, &a.Title, &a.Summary, &a.URL, &a.Source, &a.ContentFingerprint,
			&a.PublishedDate, &a.CreatedAt, &a.UpdatedAt, &lastUpdate, &a.DuplicateCheckCount,
			&sim,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		a.LastContentUpdate = lastUpdate
		candidates = append(candidates, types.DuplicateCandidate{Article: a, TitleSimilarity: float64(sim)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}
	return candidates, nil
}

// InsertArticle stores a new article, or refreshes the row that already has
// the same identity fingerprint.
func (s *PostgresStorage) InsertArticle(ctx context.Context, article *types.IncomingArticle) (*types.StoredArticle, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := scanArticle(s.pool.QueryRow(ctx, `
		INSERT INTO articles (external_id, title, summary, url, source, content_hash, published_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			source = EXCLUDED.source,
			content_hash = EXCLUDED.content_hash,
			updated_at = CURRENT_TIMESTAMP
		RETURNING `+articleColumns,
		fingerprint.Identity(article.Title, article.URL),
		article.Title,
		article.Summary,
		article.URL,
		article.Source,
		fingerprint.Content(article.Title, article.Summary),
		article.PublishedOrNow(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}
	return a, nil
}

// UpdateContentFields patches title and summary after a content change.
// Empty fields keep their stored value, and content_hash always describes the
// resulting title and summary. The row is locked while the fields merge.
func (s *PostgresStorage) UpdateContentFields(ctx context.Context, id int64, update types.ContentUpdate) error {
	at := update.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var title, summary string
		err := tx.QueryRow(ctx, `SELECT title, summary FROM articles WHERE id = $1 FOR UPDATE`, id).Scan(&title, &summary)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", types.ErrArticleNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read article %d: %w", id, err)
		}
		title, summary, fp := update.Merge(title, summary, fingerprint.Content)

		_, err = tx.Exec(ctx, `
			UPDATE articles SET
				title = $2,
				summary = $3,
				content_hash = $4,
				last_content_update = $5,
				duplicate_check_count = duplicate_check_count + 1,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = $1
		`, id, title, summary, fp, at)
		if err != nil {
			return fmt.Errorf("failed to update article %d: %w", id, err)
		}
		return nil
	})
}

// RecordDuplicateCheck bumps duplicate_check_count for an unchanged duplicate
func (s *PostgresStorage) RecordDuplicateCheck(ctx context.Context, id int64) error {
	return s.execOne(ctx, id, `UPDATE articles SET duplicate_check_count = duplicate_check_count + 1 WHERE id = $1`, id)
}

func (s *PostgresStorage) execOne(ctx context.Context, id int64, query string, args ...any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update article %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", types.ErrArticleNotFound, id)
	}
	return nil
}

// GetDuplicateStats summarizes the store
func (s *PostgresStorage) GetDuplicateStats(ctx context.Context) (*types.DuplicateStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var stats types.DuplicateStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT content_hash),
			COUNT(*) - COUNT(DISTINCT content_hash),
			COALESCE(SUM(duplicate_check_count), 0),
			MAX(last_content_update)
		FROM articles
	`).Scan(
		&stats.TotalArticles,
		&stats.UniqueContentFingerprint,
		&stats.PotentialDuplicates,
		&stats.TotalDuplicateChecks,
		&stats.MostRecentContentUpdate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate stats: %w", err)
	}
	return &stats, nil
}

func scanArticle(row pgx.Row) (*types.StoredArticle, error) {
	var a types.StoredArticle
	err := row.Scan(
		&a.ID, &a.ExternalID, &a.Title, &a.Summary, &a.URL, &a.Source, &a.ContentFingerprint,
		&a.PublishedDate, &a.CreatedAt, &a.UpdatedAt, &a.LastContentUpdate, &a.DuplicateCheckCount,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
