package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrArticleNotFound is returned by stores when an article id does not exist
var ErrArticleNotFound = errors.New("article not found")

// IncomingArticle is a freshly fetched article that has not been persisted yet
type IncomingArticle struct {
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	URL           string    `json:"url"`
	Source        string    `json:"source"`
	PublishedDate time.Time `json:"published_date"`
}

// Validate checks if the article has the fields the pipeline depends on
func (a *IncomingArticle) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(a.Title) > 1000 {
		return fmt.Errorf("title must be 1000 characters or less (got %d)", len(a.Title))
	}
	if strings.TrimSpace(a.URL) == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

// PublishedOrNow returns the published date, or now when the feed did not carry one
func (a *IncomingArticle) PublishedOrNow() time.Time {
	if a.PublishedDate.IsZero() {
		return time.Now()
	}
	return a.PublishedDate
}

// StoredArticle is the persisted form of an article
type StoredArticle struct {
	ID                  int64      `json:"id"`
	ExternalID          string     `json:"external_id"`
	Title               string     `json:"title"`
	Summary             string     `json:"summary"`
	URL                 string     `json:"url"`
	Source              string     `json:"source"`
	ContentFingerprint  string     `json:"content_fingerprint"`
	PublishedDate       time.Time  `json:"published_date"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	LastContentUpdate   *time.Time `json:"last_content_update,omitempty"`
	DuplicateCheckCount int        `json:"duplicate_check_count"`
}

// DuplicateCandidate is a stored article returned by the time-windowed
// fuzzy title search, together with its title similarity to the incoming article
type DuplicateCandidate struct {
	Article         StoredArticle `json:"article"`
	TitleSimilarity float64       `json:"title_similarity"` // 0.0-1.0
}

// ContentUpdate is the narrow set of fields the engine may change on a stored
// article. Empty Title or Summary keeps the stored value.
// ContentFingerprint is the caller's fingerprint of Title and Summary.
type ContentUpdate struct {
	Title              string    `json:"title"`
	Summary            string    `json:"summary"`
	ContentFingerprint string    `json:"content_fingerprint"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Merge applies the update to the stored title and summary and returns the
// resulting fields with their content fingerprint. The caller's fingerprint
// is only trusted when the update replaces both fields; otherwise it would
// describe text that is not stored, so it is recomputed from the merge.
func (u ContentUpdate) Merge(title, summary string, content func(title, summary string) string) (string, string, string) {
	if u.Title != "" {
		title = u.Title
	}
	if u.Summary != "" {
		summary = u.Summary
	}
	if u.ContentFingerprint != "" && u.Title != "" && u.Summary != "" {
		return title, summary, u.ContentFingerprint
	}
	return title, summary, content(title, summary)
}

// DuplicateStats summarizes deduplication state across the article store
type DuplicateStats struct {
	TotalArticles            int64      `json:"total_articles"`
	UniqueContentFingerprint int64      `json:"unique_content_fingerprints"`
	PotentialDuplicates      int64      `json:"potential_duplicates"`
	TotalDuplicateChecks     int64      `json:"total_duplicate_checks"`
	MostRecentContentUpdate  *time.Time `json:"most_recent_content_update,omitempty"`
}
