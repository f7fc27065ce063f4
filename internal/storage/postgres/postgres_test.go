package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/newsdedup/internal/fingerprint"
	"github.com/steveyegge/newsdedup/internal/types"
)

// setupTestStorage connects to NEWSDEDUP_TEST_PG_DSN and empties the table
func setupTestStorage(t *testing.T) *PostgresStorage {
	t.Helper()
	dsn := os.Getenv("NEWSDEDUP_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL test (NEWSDEDUP_TEST_PG_DSN not set)")
	}

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.DSN = dsn
	cfg.ConnectTimeout = 5 * time.Second

	storage, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("Skipping PostgreSQL test (database not available): %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	_, err = storage.pool.Exec(ctx, `TRUNCATE TABLE articles RESTART IDENTITY`)
	require.NoError(t, err, "failed to clean up test database")
	return storage
}

var day = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func insert(t *testing.T, s *PostgresStorage, title, summary, url string, published time.Time) *types.StoredArticle {
	t.Helper()
	a, err := s.InsertArticle(context.Background(), &types.IncomingArticle{
		Title: title, Summary: summary, URL: url, Source: "Wire", PublishedDate: published,
	})
	require.NoError(t, err)
	return a
}

func TestInsertAndLookup(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	a := insert(t, s, "Regulator fines operator", "Body.", "https://a.example/1", day)
	assert.Equal(t, fingerprint.Identity("Regulator fines operator", "https://a.example/1"), a.ExternalID)

	byURL, err := s.FindByURL(ctx, "https://a.example/1")
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, a.ID, byURL.ID)

	byFP, err := s.FindByContentFingerprint(ctx, a.ContentFingerprint)
	require.NoError(t, err)
	require.NotNil(t, byFP)

	missing, err := s.FindByURL(ctx, "https://none.example")
	require.NoError(t, err)
	assert.Nil(t, missing)

	again := insert(t, s, "Regulator fines operator", "Body, revised.", "https://a.example/1", day)
	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, "Body, revised.", again.Summary)
}

func TestFindCandidates(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	insert(t, s, "Senate passes nursing home staffing bill", "", "https://a.example/1", day.Add(-48*time.Hour))
	insert(t, s, "Senate passes nursing home staffing bill", "", "https://a.example/old", day.Add(-30*24*time.Hour))
	insert(t, s, "Medical device maker reports earnings", "", "https://a.example/2", day)

	got, err := s.FindCandidates(ctx, "Senate passes nursing home staffing bill", day, 7*24*time.Hour, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://a.example/1", got[0].Article.URL)
	assert.InDelta(t, 1.0, got[0].TitleSimilarity, 0.0001)
}

func TestUpdatesAndStats(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	a := insert(t, s, "Plant closure", "Short.", "https://a.example/p", day)
	insert(t, s, "Plant closure", "Short.", "https://mirror.example/p", day)

	require.NoError(t, s.UpdateContentFields(ctx, a.ID, types.ContentUpdate{Summary: "Short. Final.", UpdatedAt: day}))
	require.NoError(t, s.RecordDuplicateCheck(ctx, a.ID))
	assert.ErrorIs(t, s.RecordDuplicateCheck(ctx, 999999), types.ErrArticleNotFound)

	got, err := s.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plant closure", got.Title)
	assert.Equal(t, "Short. Final.", got.Summary)
	assert.Equal(t, fingerprint.Content("Plant closure", "Short. Final."), got.ContentFingerprint)

	require.NoError(t, s.UpdateContentFields(ctx, a.ID, types.ContentUpdate{
		Title:              "Plant closure confirmed",
		ContentFingerprint: fingerprint.Content("Plant closure confirmed", ""),
		UpdatedAt:          day,
	}))
	got, err = s.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Short. Final.", got.Summary, "empty summary keeps the stored one")
	assert.Equal(t, fingerprint.Content(got.Title, got.Summary), got.ContentFingerprint)
	assert.Equal(t, 3, got.DuplicateCheckCount)

	stats, err := s.GetDuplicateStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalArticles)
	assert.Equal(t, int64(3), stats.TotalDuplicateChecks)
	require.NotNil(t, stats.MostRecentContentUpdate)
}

// TestConcurrentInsertSameIdentity verifies the upsert keeps one row per
// identity fingerprint under concurrent writers
func TestConcurrentInsertSameIdentity(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.InsertArticle(ctx, &types.IncomingArticle{
				Title:   "Same story",
				Summary: fmt.Sprintf("revision %d", i),
				URL:     "https://a.example/same",
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	stats, err := s.GetDuplicateStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalArticles)
}
