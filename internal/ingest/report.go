package ingest

import (
	"time"

	"github.com/steveyegge/newsdedup/internal/ai"
	"github.com/steveyegge/newsdedup/internal/significance"
	"github.com/steveyegge/newsdedup/internal/types"
)

// Action is what the pipeline did with one article
type Action string

const (
	ActionStored    Action = "stored"    // new article inserted
	ActionSkipped   Action = "skipped"   // duplicate, content unchanged
	ActionPatched   Action = "patched"   // duplicate, minor edit applied
	ActionReanalyze Action = "reanalyze" // duplicate, significant edit applied and handed off
	ActionSeen      Action = "seen"      // literal re-fetch, pipeline not run
	ActionInvalid   Action = "invalid"   // missing title or url
	ActionFailed    Action = "failed"    // store error, outcome indeterminate
)

// ArticleResult records the handling of one article
type ArticleResult struct {
	Title        string               `json:"title"`
	URL          string               `json:"url"`
	Action       Action               `json:"action"`
	Method       types.Method         `json:"method,omitempty"`
	Outcome      types.Outcome        `json:"outcome,omitempty"`
	ArticleID    int64                `json:"article_id,omitempty"`
	MatchedID    *int64               `json:"matched_id,omitempty"`
	Significance *significance.Result `json:"significance,omitempty"`
	Error        string               `json:"error,omitempty"`
	PublishError string               `json:"publish_error,omitempty"`
}

// RunReport summarizes one Run
type RunReport struct {
	RunID           string               `json:"run_id"`
	StartedAt       time.Time            `json:"started_at"`
	FinishedAt      time.Time            `json:"finished_at"`
	DryRun          bool                 `json:"dry_run,omitempty"`
	Processed       int                  `json:"processed"`
	Actions         map[Action]int       `json:"actions"`
	Methods         map[types.Method]int `json:"methods"`
	AIChecks        int                  `json:"ai_checks"`
	AIFallbacks     int                  `json:"ai_fallbacks"`
	PublishFailures int                  `json:"publish_failures"`
	AIFailover      *ai.FailoverStats    `json:"ai_failover,omitempty"`
	ArchiveLocation string               `json:"archive_location,omitempty"`
	Results         []ArticleResult      `json:"results"`
}

func newRunReport(runID string, started, finished time.Time, dryRun bool, results []ArticleResult) *RunReport {
	r := &RunReport{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		DryRun:     dryRun,
		Actions:    make(map[Action]int),
		Methods:    make(map[types.Method]int),
		Results:    make([]ArticleResult, 0, len(results)),
	}
	for _, res := range results {
		if res.Action == "" {
			// never dispatched because the context ended first
			continue
		}
		r.Processed++
		r.Actions[res.Action]++
		if res.Method != "" {
			r.Methods[res.Method]++
		}
		if res.Method.InvokesAI() {
			r.AIChecks++
		}
		if res.Outcome.IsFallback() {
			r.AIFallbacks++
		}
		if res.PublishError != "" {
			r.PublishFailures++
		}
		r.Results = append(r.Results, res)
	}
	return r
}

// Failed reports whether any article ended indeterminate
func (r *RunReport) Failed() int {
	return r.Actions[ActionFailed]
}
