package deduplication

import (
	"sync"
	"sync/atomic"

	"github.com/steveyegge/newsdedup/internal/types"
)

// Stats counts arbitration outcomes across all Check calls on one Arbiter
type Stats struct {
	checks         atomic.Int64
	duplicates     atomic.Int64
	storeErrors    atomic.Int64
	aiCalls        atomic.Int64
	aiFallbacks    atomic.Int64
	parseFailures  atomic.Int64
	providerErrors atomic.Int64
	unknownMatches atomic.Int64

	mu       sync.Mutex
	byMethod map[types.Method]int64
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Checks         int64                  `json:"checks"`
	Duplicates     int64                  `json:"duplicates"`
	StoreErrors    int64                  `json:"store_errors"`
	AICalls        int64                  `json:"ai_calls"`
	AIFallbacks    int64                  `json:"ai_fallbacks"`
	ParseFailures  int64                  `json:"parse_failures"`
	ProviderErrors int64                  `json:"provider_errors"`
	UnknownMatches int64                  `json:"unknown_matches"`
	ByMethod       map[types.Method]int64 `json:"by_method"`
}

func newStats() *Stats {
	return &Stats{byMethod: make(map[types.Method]int64)}
}

func (s *Stats) recordVerdict(v *types.Verdict) {
	if v.IsDuplicate {
		s.duplicates.Add(1)
	}
	switch v.Outcome {
	case types.OutcomeClassifierUnavailable:
		s.providerErrors.Add(1)
	case types.OutcomeParseFailure:
		s.parseFailures.Add(1)
	case types.OutcomeUnknownMatch:
		s.unknownMatches.Add(1)
	}
	if v.FellBack() {
		s.aiFallbacks.Add(1)
	}

	s.mu.Lock()
	s.byMethod[v.Method]++
	s.mu.Unlock()
}

// Snapshot returns the current counters
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	byMethod := make(map[types.Method]int64, len(s.byMethod))
	for k, v := range s.byMethod {
		byMethod[k] = v
	}
	s.mu.Unlock()

	return StatsSnapshot{
		Checks:         s.checks.Load(),
		Duplicates:     s.duplicates.Load(),
		StoreErrors:    s.storeErrors.Load(),
		AICalls:        s.aiCalls.Load(),
		AIFallbacks:    s.aiFallbacks.Load(),
		ParseFailures:  s.parseFailures.Load(),
		ProviderErrors: s.providerErrors.Load(),
		UnknownMatches: s.unknownMatches.Load(),
		ByMethod:       byMethod,
	}
}
