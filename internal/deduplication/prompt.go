package deduplication

import (
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/newsdedup/internal/types"
)

const promptDateLayout = "2006-01-02"

// buildPrompt renders the Stage 4 question. Each candidate carries its store
// id so the answer's matchedId can be checked against the supplied set.
func buildPrompt(article *types.IncomingArticle, candidates []types.DuplicateCandidate, excerptChars int) string {
	var b strings.Builder

	b.WriteString("You are a news deduplication expert. Determine if the NEW article is a duplicate of any EXISTING articles.\n\n")

	b.WriteString("NEW ARTICLE:\n")
	fmt.Fprintf(&b, "- Title: %q\n", article.Title)
	fmt.Fprintf(&b, "- Source: %s\n", orNA(article.Source))
	fmt.Fprintf(&b, "- Date: %s\n", formatDate(article.PublishedDate))
	fmt.Fprintf(&b, "- First %d chars: %q\n\n", excerptChars, excerpt(article.Summary, excerptChars))

	b.WriteString("EXISTING ARTICLES (potential duplicates):\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n%d. ID: %d\n", i+1, c.Article.ID)
		fmt.Fprintf(&b, "   Title: %q\n", c.Article.Title)
		fmt.Fprintf(&b, "   Source: %s\n", orNA(c.Article.Source))
		fmt.Fprintf(&b, "   Date: %s\n", formatDate(c.Article.PublishedDate))
		fmt.Fprintf(&b, "   First %d chars: %q\n", excerptChars, orNA(excerpt(c.Article.Summary, excerptChars)))
		fmt.Fprintf(&b, "   Similarity: %.1f%%\n", c.TitleSimilarity*100)
	}

	b.WriteString(`
RULES:
- Mark as duplicate if it's the SAME story/event, even if titles differ slightly
- Syndicated content = duplicate
- Updated versions of same article = duplicate
- Different stories about same topic = NOT duplicate
- Similar titles but different events = NOT duplicate

Respond ONLY with valid JSON:
{
  "isDuplicate": true/false,
  "matchedId": <ID of the matching existing article, or null>,
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation"
}

If multiple candidates match, return the best match.`)

	return b.String()
}

// excerpt returns the first n runes of s
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(promptDateLayout)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
