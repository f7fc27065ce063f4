// Package deduplication decides whether an incoming article is a story the
// store already holds.
//
// # Overview
//
// Every new story triggers a paid analysis call downstream, so the arbiter's
// job is to recognise re-fetches, syndicated copies and rewrites of the same
// event before they reach that step. It runs four ordered stages and stops at
// the first one that produces a verdict:
//
//  1. URL match: same URL as a stored article. Duplicate, method "url".
//     ContentChanged reports whether the content fingerprint moved, which is
//     how live-updated wire stories are noticed.
//  2. Content fingerprint match: byte-identical title and summary under a
//     different URL. Duplicate, method "content_hash".
//  3. Candidate search: time-windowed fuzzy title search in the store. No
//     candidates gives "no_similar"; candidates that all fall below the
//     similarity threshold give "low_similarity".
//  4. AI arbitration: only candidates at or above the threshold are sent to
//     the classifier, which answers with a JSON decision. Method "ai".
//
// The classifier is never called from stages 1 to 3. Tests in this package
// assert that with a counting fake.
//
// # Error Handling
//
// Store errors are returned to the caller: the article could not be
// deduplicated and must not be treated as new. Everything that goes wrong in
// stage 4 (provider errors, budget refusals, unparseable output, a matchedId
// that names no supplied candidate) resolves to a not-duplicate verdict. The
// verdict's Outcome says which fallback happened and Stats counts it.
//
// # Usage
//
//	arbiter, err := deduplication.NewArbiter(store, classifier, deduplication.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	verdict, err := arbiter.Check(ctx, article)
//	if err != nil {
//	    // indeterminate, retry the article later
//	}
//	if verdict.NeedsSignificanceCheck() {
//	    // run the significance classifier
//	}
package deduplication
