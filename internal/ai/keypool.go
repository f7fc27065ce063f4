package ai

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNoKeys is returned when a KeyPool was built without keys
var ErrNoKeys = errors.New("no API keys configured")

// KeyPool rotates across several API keys for one provider.
// The current key sticks until it fails; then the next healthy key takes over.
// When every key has failed the marks are cleared and the primary is retried.
// Usage counters reset every resetInterval.
type KeyPool struct {
	mu sync.Mutex

	keys          []string
	current       int
	failed        map[int]bool
	uses          map[int]int64
	resetInterval time.Duration
	windowStart   time.Time
	now           func() time.Time
}

// KeyStats describes one key without exposing it
type KeyStats struct {
	Index  int    `json:"index"`
	Suffix string `json:"suffix"`
	Uses   int64  `json:"uses"`
	Failed bool   `json:"failed"`
}

// NewKeyPool creates a pool from keys, dropping blanks and duplicates
func NewKeyPool(keys []string, resetInterval time.Duration) (*KeyPool, error) {
	seen := make(map[string]bool)
	var clean []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		clean = append(clean, k)
	}
	if len(clean) == 0 {
		return nil, ErrNoKeys
	}

	p := &KeyPool{
		keys:          clean,
		failed:        make(map[int]bool),
		uses:          make(map[int]int64),
		resetInterval: resetInterval,
		now:           time.Now,
	}
	p.windowStart = p.now()
	return p, nil
}

// KeysFromEnv reads ANTHROPIC_API_KEYS (comma-separated) or falls back to
// ANTHROPIC_API_KEY plus the ANTHROPIC_API_KEY_BACKUP_1/2 variables
func KeysFromEnv() []string {
	if list := os.Getenv("ANTHROPIC_API_KEYS"); list != "" {
		return strings.Split(list, ",")
	}
	var keys []string
	for _, name := range []string{"ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY_BACKUP_1", "ANTHROPIC_API_KEY_BACKUP_2"} {
		if v := os.Getenv(name); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

// Len returns the number of keys
func (p *KeyPool) Len() int {
	return len(p.keys)
}

// Healthy returns the number of keys not currently marked failed
func (p *KeyPool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys) - len(p.failed)
}

// Next returns the key to use and its index
func (p *KeyPool) Next() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rollWindowLocked()

	if !p.failed[p.current] {
		return p.keys[p.current], p.current
	}

	for i := 1; i <= len(p.keys); i++ {
		idx := (p.current + i) % len(p.keys)
		if !p.failed[idx] {
			p.current = idx
			return p.keys[idx], idx
		}
	}

	// every key failed, start over from the primary
	slog.Warn("all API keys marked failed, resetting to primary key", "keys", len(p.keys))
	p.failed = make(map[int]bool)
	p.current = 0
	return p.keys[0], 0
}

// MarkFailed benches the key at idx
func (p *KeyPool) MarkFailed(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.keys) {
		return
	}
	p.failed[idx] = true
	slog.Warn("API key marked as failed", "key_index", idx, "key_suffix", suffix(p.keys[idx]))
}

// MarkSuccess records a use of the key at idx and clears its failure mark.
// A recovered primary key becomes current again.
func (p *KeyPool) MarkSuccess(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.keys) {
		return
	}
	p.rollWindowLocked()
	delete(p.failed, idx)
	p.uses[idx]++
	if idx == 0 {
		p.current = 0
	}
}

// Stats returns per-key usage
func (p *KeyPool) Stats() []KeyStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollWindowLocked()

	out := make([]KeyStats, len(p.keys))
	for i, k := range p.keys {
		out[i] = KeyStats{Index: i, Suffix: suffix(k), Uses: p.uses[i], Failed: p.failed[i]}
	}
	return out
}

// must be called with lock held
func (p *KeyPool) rollWindowLocked() {
	if p.resetInterval <= 0 {
		return
	}
	if p.now().Sub(p.windowStart) >= p.resetInterval {
		p.uses = make(map[int]int64)
		p.windowStart = p.now()
	}
}

func suffix(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "..." + key[len(key)-4:]
}
