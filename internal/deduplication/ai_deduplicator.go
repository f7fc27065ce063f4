package deduplication

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/steveyegge/newsdedup/internal/ai"
	"github.com/steveyegge/newsdedup/internal/types"
)

// arbitrate runs Stage 4. It never returns an error: every failure becomes a
// not-duplicate verdict tagged with the reason.
func (a *Arbiter) arbitrate(ctx context.Context, article *types.IncomingArticle, candidates []types.DuplicateCandidate) *types.Verdict {
	notDuplicate := func(outcome types.Outcome, reasoning string) *types.Verdict {
		return &types.Verdict{Method: types.MethodAI, Outcome: outcome, Reasoning: reasoning}
	}

	if !a.config.AIEnabled || a.classifier == nil {
		slog.Debug("AI arbitration disabled, treating as new", "url", article.URL, "candidates", len(candidates))
		return notDuplicate(types.OutcomeAIDisabled, "AI arbitration disabled")
	}

	prompt := buildPrompt(article, candidates, a.config.ExcerptChars)

	a.stats.aiCalls.Add(1)
	completion, err := a.classifier.Classify(ctx, prompt, ai.CompletionOptions{
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
	})
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ai.ErrBudgetExceeded) {
			level = slog.LevelInfo
		}
		slog.Log(ctx, level, "AI arbitration unavailable, treating as new", "url", article.URL, "error", err)
		return notDuplicate(types.OutcomeClassifierUnavailable, fmt.Sprintf("classifier unavailable: %v", err))
	}

	slog.Debug("AI arbitration response", "provider", completion.Provider, "text", truncate(completion.Text, 200))

	decision, err := parseDecision(completion.Text)
	if err != nil {
		slog.Warn("AI arbitration response could not be parsed, treating as new",
			"provider", completion.Provider, "url", article.URL, "error", err)
		v := notDuplicate(types.OutcomeParseFailure, err.Error())
		v.AIProvider = completion.Provider
		return v
	}

	v := &types.Verdict{
		Method:     types.MethodAI,
		Outcome:    types.OutcomeConfirmed,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		AIProvider: completion.Provider,
	}

	if !*decision.IsDuplicate {
		return v
	}

	if decision.MatchedID == nil {
		slog.Warn("AI said duplicate without a matchedId, treating as new", "url", article.URL)
		v.Outcome = types.OutcomeUnknownMatch
		return v
	}
	for i := range candidates {
		if candidates[i].Article.ID == int64(*decision.MatchedID) {
			matched := candidates[i].Article
			id := matched.ID
			v.IsDuplicate = true
			v.MatchedID = &id
			v.MatchedArticle = &matched
			return v
		}
	}

	slog.Warn("AI matchedId is not among supplied candidates, treating as new",
		"url", article.URL, "matched_id", int64(*decision.MatchedID))
	v.Outcome = types.OutcomeUnknownMatch
	return v
}

// aiDecision is the JSON answer the classifier is asked for
type aiDecision struct {
	IsDuplicate *bool        `json:"isDuplicate"`
	MatchedID   *candidateID `json:"matchedId"`
	Confidence  *float64     `json:"confidence"`
	Reasoning   string       `json:"reasoning"`
}

// Validate implements ai.Validatable. Field presence is checked explicitly;
// a missing isDuplicate or confidence is a malformed answer.
func (d aiDecision) Validate() error {
	if d.IsDuplicate == nil {
		return errors.New("isDuplicate is missing")
	}
	if d.Confidence == nil {
		return errors.New("confidence is missing")
	}
	if *d.Confidence < 0.0 || *d.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", *d.Confidence)
	}
	return nil
}

// candidateID accepts 42, "42" or null
type candidateID int64

func (c *candidateID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("matchedId is not an integer: %s", data)
	}
	*c = candidateID(n)
	return nil
}

func parseDecision(text string) (aiDecision, error) {
	res := ai.ParseValidated[aiDecision](text, ai.ParseOptions{Context: "duplicate decision"})
	if !res.Success {
		return aiDecision{}, errors.New(res.Error)
	}
	return res.Data, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
