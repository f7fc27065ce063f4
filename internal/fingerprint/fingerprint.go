// Package fingerprint derives the deterministic hashes that identify articles.
//
// Identity fingerprints detect a literal re-fetch of the same feed item and
// double as the store's external id. Content fingerprints detect edits: they
// are computed over the raw title and summary, so any change to either field
// produces a different fingerprint.
package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// Identity returns a 128-bit hex fingerprint over title + ":" + url.
// MD5 keeps ids compatible with rows written by earlier ingesters; it is an
// identifier, not a security boundary.
func Identity(title, url string) string {
	sum := md5.Sum([]byte(title + ":" + url))
	return hex.EncodeToString(sum[:])
}

// Content returns a SHA-256 hex fingerprint over the un-normalized title and summary.
// The fields are separated by a NUL byte so that moving text across the
// boundary changes the fingerprint.
func Content(title, summary string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(summary))
	return hex.EncodeToString(h.Sum(nil))
}

// Changed reports whether the stored fingerprint differs from the one computed
// for title and summary
func Changed(stored, title, summary string) bool {
	return stored != Content(title, summary)
}
