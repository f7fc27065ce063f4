// Package feeds fetches RSS/Atom feeds and turns their items into
// IncomingArticles for the ingest pipeline.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/steveyegge/newsdedup/internal/types"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; newsdedup/1.0; +https://github.com/steveyegge/newsdedup)"

// Feed is one configured source
type Feed struct {
	URL    string `yaml:"url"`
	Source string `yaml:"source"`
}

// Config controls fetching
type Config struct {
	Timeout           time.Duration // per HTTP request
	UserAgent         string
	RequestsPerSecond float64 // across all feed and page requests
	Burst             int
	SummaryChars      int  // summaries are cut to this many runes
	MaxItems          int  // per feed, 0 = all
	ExtractMissing    bool // fetch the page when an item has no summary
}

// DefaultConfig returns the fetch defaults
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		UserAgent:         defaultUserAgent,
		RequestsPerSecond: 2,
		Burst:             1,
		SummaryChars:      500,
	}
}

// Fetcher downloads and parses feeds
type Fetcher struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher creates a fetcher. A nil client uses one with config.Timeout.
func NewFetcher(config Config, client *http.Client) *Fetcher {
	if config.SummaryChars <= 0 {
		config.SummaryChars = 500
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	return &Fetcher{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// FetchAll fetches every feed in turn. A failing feed is logged and
// skipped; its error is joined into the returned error alongside the
// articles from the feeds that worked. Articles come back newest first.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []Feed) ([]types.IncomingArticle, error) {
	var (
		all  []types.IncomingArticle
		errs []error
	)
	for _, feed := range feeds {
		articles, err := f.Fetch(ctx, feed)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			slog.Warn("feed fetch failed", "feed", feed.URL, "source", feed.Source, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", feed.URL, err))
			continue
		}
		slog.Info("fetched feed", "source", feed.Source, "items", len(articles))
		all = append(all, articles...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PublishedDate.After(all[j].PublishedDate)
	})
	return all, errors.Join(errs...)
}

// Fetch downloads and parses one feed
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]types.IncomingArticle, error) {
	body, err := f.get(ctx, feed.URL, "application/rss+xml, application/xml, text/xml, */*")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	parsed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	source := feed.Source
	if source == "" {
		source = parsed.Title
	}

	items := parsed.Items
	if f.config.MaxItems > 0 && len(items) > f.config.MaxItems {
		items = items[:f.config.MaxItems]
	}

	articles := make([]types.IncomingArticle, 0, len(items))
	for _, item := range items {
		if item == nil || strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
			continue
		}
		articles = append(articles, f.toArticle(ctx, item, source))
	}
	return articles, nil
}

func (f *Fetcher) toArticle(ctx context.Context, item *gofeed.Item, source string) types.IncomingArticle {
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	summary := Truncate(CleanHTML(raw), f.config.SummaryChars)

	if summary == "" && f.config.ExtractMissing {
		text, err := f.extract(ctx, item.Link)
		if err != nil {
			slog.Debug("page extraction failed", "url", item.Link, "error", err)
		} else {
			summary = Truncate(text, f.config.SummaryChars)
		}
	}

	var published time.Time
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}

	return types.IncomingArticle{
		Title:         strings.TrimSpace(item.Title),
		Summary:       summary,
		URL:           strings.TrimSpace(item.Link),
		Source:        source,
		PublishedDate: published,
	}
}

// extract pulls the readable text of an article page
func (f *Fetcher) extract(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	body, err := f.get(ctx, pageURL, "text/html, */*")
	if err != nil {
		return "", err
	}
	defer body.Close()

	article, err := readability.FromReader(body, u)
	if err != nil {
		return "", fmt.Errorf("readability extraction failed: %w", err)
	}
	text := article.TextContent
	if strings.TrimSpace(text) == "" {
		text = article.Excerpt
	}
	return collapseSpace(text), nil
}

func (f *Fetcher) get(ctx context.Context, target, accept string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// CleanHTML returns the text content of an HTML fragment with whitespace
// collapsed. Plain text passes through unchanged apart from whitespace.
func CleanHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	doc.Find("script, style").Remove()
	return collapseSpace(doc.Text())
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
