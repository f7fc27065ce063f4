// Package similarity provides the text normalization and edit-distance
// scoring used to compare article titles.
//
// Scores from this package are a local signal. The article store ranks
// candidates with its own fuzzy index and the two may disagree slightly.
package similarity

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes text for comparison: lowercase, punctuation
// stripped, whitespace collapsed to single spaces and trimmed.
// The result is only used for comparison; callers keep the original text.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		default:
			// punctuation and symbols are dropped without acting as separators
		}
	}

	return b.String()
}
