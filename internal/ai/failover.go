package ai

import (
	"log/slog"
	"sync"
	"time"
)

// FailoverState tracks which providers are healthy and how much each is used.
// A provider marked failed is skipped until its cooldown passes or it succeeds again.
// Request counters reset every counterWindow.
type FailoverState struct {
	mu sync.Mutex

	order         []string // priority order, highest first
	failedAt      map[string]time.Time
	lastErr       map[string]string
	requests      map[string]int64
	failures      map[string]int64
	current       string
	cooldown      time.Duration
	counterWindow time.Duration
	windowStart   time.Time
	now           func() time.Time
}

// ProviderStats is a snapshot of one provider's fail-over state
type ProviderStats struct {
	Name      string     `json:"name"`
	Priority  int        `json:"priority"`
	Failed    bool       `json:"failed"`
	FailedAt  *time.Time `json:"failed_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Requests  int64      `json:"requests"`
	Failures  int64      `json:"failures"`
}

// FailoverStats is a snapshot of the whole fail-over state
type FailoverStats struct {
	Providers   []ProviderStats `json:"providers"`
	Current     string          `json:"current,omitempty"`
	WindowStart time.Time       `json:"window_start"`
}

// NewFailoverState creates fail-over bookkeeping for providers in priority order
func NewFailoverState(order []string, cooldown time.Duration) *FailoverState {
	o := make([]string, len(order))
	copy(o, order)
	s := &FailoverState{
		order:         o,
		failedAt:      make(map[string]time.Time),
		lastErr:       make(map[string]string),
		requests:      make(map[string]int64),
		failures:      make(map[string]int64),
		cooldown:      cooldown,
		counterWindow: time.Hour,
		now:           time.Now,
	}
	s.windowStart = s.now()
	return s
}

// Candidates returns the providers to try, in priority order, skipping benched ones
func (s *FailoverState) Candidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollWindowLocked()
	now := s.now()

	var out []string
	for _, name := range s.order {
		if at, failed := s.failedAt[name]; failed {
			if s.cooldown <= 0 || now.Sub(at) < s.cooldown {
				continue
			}
			// cooldown over, give it another chance
			delete(s.failedAt, name)
		}
		out = append(out, name)
	}
	return out
}

// RecordRequest counts one call made to the provider
func (s *FailoverState) RecordRequest(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollWindowLocked()
	s.requests[name]++
}

// MarkFailed benches the provider until the cooldown passes
func (s *FailoverState) MarkFailed(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failedAt[name] = s.now()
	s.failures[name]++
	if err != nil {
		s.lastErr[name] = err.Error()
	}
	if s.current == name {
		s.current = ""
	}
	slog.Warn("AI provider marked as failed", "provider", name, "cooldown", s.cooldown, "error", err)
}

// MarkSuccess clears any failure mark and makes the provider current
func (s *FailoverState) MarkSuccess(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failedAt, name)
	if s.current != name {
		slog.Info("using AI provider", "provider", name)
	}
	s.current = name
}

// Reset clears all failure marks and counters
func (s *FailoverState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedAt = make(map[string]time.Time)
	s.lastErr = make(map[string]string)
	s.requests = make(map[string]int64)
	s.failures = make(map[string]int64)
	s.current = ""
	s.windowStart = s.now()
}

// Stats returns a snapshot
func (s *FailoverState) Stats() FailoverStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollWindowLocked()
	stats := FailoverStats{Current: s.current, WindowStart: s.windowStart}
	for i, name := range s.order {
		ps := ProviderStats{
			Name:      name,
			Priority:  i + 1,
			Requests:  s.requests[name],
			Failures:  s.failures[name],
			LastError: s.lastErr[name],
		}
		if at, ok := s.failedAt[name]; ok {
			t := at
			ps.Failed = true
			ps.FailedAt = &t
		}
		stats.Providers = append(stats.Providers, ps)
	}
	return stats
}

// must be called with lock held
func (s *FailoverState) rollWindowLocked() {
	if s.counterWindow <= 0 {
		return
	}
	if s.now().Sub(s.windowStart) >= s.counterWindow {
		s.requests = make(map[string]int64)
		s.failures = make(map[string]int64)
		s.windowStart = s.now()
	}
}
