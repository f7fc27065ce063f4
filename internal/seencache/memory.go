package seencache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	content string
	expires time.Time
}

// Memory is an in-process Cache used when no redis is configured
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an in-process cache. ttl <= 0 uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Seen(ctx context.Context, identity, content string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[identity]
	if !ok {
		return false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, identity)
		return false, nil
	}
	return e.content == content, nil
}

func (m *Memory) Remember(ctx context.Context, identity, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[identity] = memoryEntry{content: content, expires: m.now().Add(m.ttl)}
	return nil
}

// Len returns the number of live entries
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, e := range m.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}

func (m *Memory) Close() error { return nil }
