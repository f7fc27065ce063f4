// Package significance decides whether an edit to an already-stored article
// is substantial enough to re-run downstream analysis.
//
// The classifier is pure and deterministic: two strings in, a Result out, no I/O.
package significance

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/steveyegge/newsdedup/internal/similarity"
)

// Version is one revision of an article's displayed text
type Version struct {
	Title   string
	Summary string
}

// Reason names a rule that fired
type Reason string

const (
	ReasonStatusKeyword Reason = "status_keyword"
	ReasonLengthChange  Reason = "length_change"
)

// Result is the classification of an update
type Result struct {
	Significant   bool     `json:"significant"`
	Reasons       []Reason `json:"reasons,omitempty"`
	AddedKeywords []string `json:"added_keywords,omitempty"`
	// LengthDelta is |new-old|/old over summary rune counts (1.0 when old is empty and new is not)
	LengthDelta float64 `json:"length_delta"`
	// ShortSummary is set when the old summary is under Config.ShortSummaryRunes.
	// The length rule still applies; the flag only surfaces the noisy case.
	ShortSummary bool `json:"short_summary,omitempty"`
}

// Classifier applies the status-keyword and length-change rules
type Classifier struct {
	keywords []keyword
	config   Config
}

// keyword is a status term reduced to word stems. A multi-word term matches
// as a phrase of consecutive words.
type keyword struct {
	name  string
	stems []string
}

// New creates a classifier from a validated config
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var kw []keyword
	seen := make(map[string]bool, len(cfg.StatusKeywords))
	for _, k := range cfg.StatusKeywords {
		name := similarity.Normalize(k)
		stems := stemAll(strings.Fields(name))
		// spelling variants such as cancelled/canceled share stems, first one names them
		key := strings.Join(stems, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		kw = append(kw, keyword{name: name, stems: stems})
	}
	return &Classifier{keywords: kw, config: cfg}, nil
}

// Classify compares the old and new version. Either rule is sufficient for a significant result.
func (c *Classifier) Classify(old, updated Version) Result {
	var res Result

	added := c.addedKeywords(old, updated)
	if len(added) > 0 {
		res.Significant = true
		res.Reasons = append(res.Reasons, ReasonStatusKeyword)
		res.AddedKeywords = added
	}

	oldLen := utf8.RuneCountInString(old.Summary)
	newLen := utf8.RuneCountInString(updated.Summary)
	res.LengthDelta = lengthDelta(oldLen, newLen)
	res.ShortSummary = oldLen < c.config.ShortSummaryRunes
	if res.LengthDelta > c.config.LengthChangeThreshold {
		res.Significant = true
		res.Reasons = append(res.Reasons, ReasonLengthChange)
	}

	return res
}

// addedKeywords returns the status keywords present in the new title or
// summary and absent from both old fields, sorted
func (c *Classifier) addedKeywords(old, updated Version) []string {
	before := c.keywordsIn(old.Title, old.Summary)
	after := c.keywordsIn(updated.Title, updated.Summary)

	var added []string
	for k := range after {
		if _, ok := before[k]; !ok {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	return added
}

// keywordsIn matches whole words by stem, so "passes" counts as "passed"
// and "bypassed" does not
func (c *Classifier) keywordsIn(texts ...string) map[string]struct{} {
	found := make(map[string]struct{})
	for _, text := range texts {
		words := stemAll(strings.Fields(similarity.Normalize(text)))
		for _, k := range c.keywords {
			if containsPhrase(words, k.stems) {
				found[k.name] = struct{}{}
			}
		}
	}
	return found
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func stemAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = stem(w)
	}
	return out
}

// stem strips English verb inflections: finalizes, finalized, finalizing and
// finalize all reduce to "finaliz", cancelled and canceled to "cancel".
// Words that would shrink below three letters are returned unchanged.
func stem(word string) string {
	w := word
	switch {
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		w = w[:len(w)-3]
	case strings.HasSuffix(w, "ed") && len(w) > 4:
		w = w[:len(w)-2]
	case strings.HasSuffix(w, "es") && len(w) > 4:
		w = w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		w = w[:len(w)-1]
	}
	w = strings.TrimSuffix(w, "e")
	if n := len(w); n >= 2 && w[n-1] == w[n-2] && isConsonant(w[n-1]) {
		w = w[:n-1]
	}
	if utf8.RuneCountInString(w) < 3 {
		return word
	}
	return w
}

func isConsonant(b byte) bool {
	return b >= 'a' && b <= 'z' && !strings.ContainsRune("aeiou", rune(b))
}

func lengthDelta(oldLen, newLen int) float64 {
	if oldLen == 0 {
		if newLen == 0 {
			return 0
		}
		return 1.0
	}
	return math.Abs(float64(newLen-oldLen)) / float64(oldLen)
}
