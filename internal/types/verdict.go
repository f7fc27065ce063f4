package types

// Method identifies which arbitration stage produced a verdict
type Method string

const (
	MethodURL           Method = "url"            // Stage 1: exact URL match
	MethodContentHash   Method = "content_hash"   // Stage 2: identical content fingerprint
	MethodNoSimilar     Method = "no_similar"     // Stage 3: no candidates in window
	MethodLowSimilarity Method = "low_similarity" // Stage 3: candidates below threshold
	MethodAI            Method = "ai"             // Stage 4: AI arbitration
)

// IsValid checks if the method value is valid
func (m Method) IsValid() bool {
	switch m {
	case MethodURL, MethodContentHash, MethodNoSimilar, MethodLowSimilarity, MethodAI:
		return true
	}
	return false
}

// InvokesAI reports whether a verdict with this method may have called the AI classifier.
// Only Stage 4 is allowed to.
func (m Method) InvokesAI() bool {
	return m == MethodAI
}

// Outcome tags how a verdict was reached so callers can tell a confirmed
// decision apart from a fail-open default
type Outcome string

const (
	OutcomeConfirmed             Outcome = "confirmed"
	OutcomeAIDisabled            Outcome = "ai_disabled"
	OutcomeClassifierUnavailable Outcome = "classifier_unavailable"
	OutcomeParseFailure          Outcome = "parse_failure"
	OutcomeUnknownMatch          Outcome = "unknown_match"
)

// IsFallback reports whether the outcome is a fail-open default rather than a decision
func (o Outcome) IsFallback() bool {
	switch o {
	case OutcomeAIDisabled, OutcomeClassifierUnavailable, OutcomeParseFailure, OutcomeUnknownMatch:
		return true
	}
	return false
}

// Stage names recorded on a verdict as the pipeline progresses
const (
	StageURL             = "stage1_url"
	StageContentHash     = "stage2_hash"
	StageNoCandidates    = "stage3_no_candidates"
	StageFoundCandidates = "stage3_found_candidates"
	StageAICheck         = "stage4_ai_check"
)

// Verdict is the result of one arbitration call.
// It is consumed immediately by the caller and never persisted as-is.
type Verdict struct {
	IsDuplicate       bool           `json:"is_duplicate"`
	MatchedID         *int64         `json:"matched_id,omitempty"`
	MatchedArticle    *StoredArticle `json:"matched_article,omitempty"`
	ContentChanged    bool           `json:"content_changed"`
	Method            Method         `json:"method"`
	Outcome           Outcome        `json:"outcome"`
	Confidence        *float64       `json:"confidence,omitempty"`
	Reasoning         string         `json:"reasoning,omitempty"`
	CandidatesChecked int            `json:"candidates_checked,omitempty"`
	AIProvider        string         `json:"ai_provider,omitempty"`
	Stages            []string       `json:"stages"`
}

// FellBack reports whether the verdict is a fail-open default
func (v *Verdict) FellBack() bool {
	return v.Outcome.IsFallback()
}

// NeedsSignificanceCheck reports whether the caller should run the update
// significance classifier for this verdict
func (v *Verdict) NeedsSignificanceCheck() bool {
	return v.IsDuplicate && v.ContentChanged && v.MatchedArticle != nil
}
