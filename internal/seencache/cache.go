// Package seencache remembers which feed items were already processed so a
// literal re-fetch of an unchanged item can skip the duplicate pipeline.
//
// Entries map an item's identity fingerprint to its content fingerprint.
// An item is "seen" only when both match; an edited item with the same
// identity goes through the full pipeline again.
package seencache

import (
	"context"
	"time"
)

// DefaultTTL is how long an entry is kept
const DefaultTTL = 48 * time.Hour

// Cache records processed items
type Cache interface {
	// Seen reports whether identity was remembered with the same content fingerprint
	Seen(ctx context.Context, identity, content string) (bool, error)
	// Remember stores identity -> content with the cache TTL
	Remember(ctx context.Context, identity, content string) error
	Close() error
}
