// Package types defines the entities that flow through the council pipeline.
// Each entity is created by exactly one stage and is read-only downstream;
// a PipelineResult exclusively owns everything nested inside it.
package types

// Verdict is a reviewer's judgment on one claim.
type Verdict string

const (
	VerdictCorrect   Verdict = "CORRECT"
	VerdictIncorrect Verdict = "INCORRECT"
	VerdictUncertain Verdict = "UNCERTAIN"
)

// Valid reports whether v is one of the three known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictCorrect, VerdictIncorrect, VerdictUncertain:
		return true
	}
	return false
}

// QueryOptions carries per-request knobs. Immutable for the request's lifetime.
type QueryOptions struct {
	UseCache         bool `json:"use_cache"`
	Timeout          int  `json:"timeout"` // seconds; whole-request deadline
	EnableParallel   bool `json:"enable_parallel"`
	SkipFailedModels bool `json:"skip_failed_models"`
}

// DefaultOptions mirrors the option defaults of the HTTP request schema.
func DefaultOptions(timeoutSeconds int) QueryOptions {
	return QueryOptions{
		UseCache:         true,
		Timeout:          timeoutSeconds,
		EnableParallel:   true,
		SkipFailedModels: true,
	}
}

// Citation is one source reference attached to a Stage-1 answer.
type Citation struct {
	Source  string `json:"source"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// OpinionMeta annotates how a Stage-1 opinion was obtained.
type OpinionMeta struct {
	ParseError bool `json:"parse_error,omitempty"`
}

// Stage1Opinion is one model's independent first answer.
// ModelLabel is unique within a request.
type Stage1Opinion struct {
	ModelLabel string      `json:"model_label"`
	AnswerText string      `json:"answer_text"`
	Claims     []string    `json:"claims"`
	Citations  []Citation  `json:"citations"`
	Meta       OpinionMeta `json:"metadata"`
}

// ParaphrasedClaim is one atomic canonical claim extracted from an opinion.
// ClaimID follows "<lowercased origin model>_claim_<index>" with index
// running from 0 within one origin model's paraphrase output.
type ParaphrasedClaim struct {
	ClaimID       string `json:"claim_id"`
	OriginModel   string `json:"original_model"`
	OriginalText  string `json:"original_text"`
	CanonicalText string `json:"canonical_text"`
	WordCount     int    `json:"word_count"`
}

// ReviewItem is one reviewer's judgment of one claim.
type ReviewItem struct {
	ClaimID        string  `json:"claim_id"`
	Verdict        Verdict `json:"verdict"`
	Reason         string  `json:"reason"`
	EvidenceNeeded bool    `json:"evidence_needed"`
	Confidence     float64 `json:"confidence"`
}

// VerdictMeta annotates one reviewer's output.
type VerdictMeta struct {
	TotalReviewed int  `json:"total_reviewed"`
	Fallback      bool `json:"fallback,omitempty"`
}

// ReviewerVerdict is everything one reviewer produced for a request.
type ReviewerVerdict struct {
	ReviewerLabel string       `json:"reviewer_label"`
	Reviews       []ReviewItem `json:"reviews"`
	Meta          VerdictMeta  `json:"metadata"`
}

// Aggregation is the pure reduction over all reviewer verdicts.
// The four buckets are disjoint and hold canonical claim texts in the order
// claim ids were first encountered.
type Aggregation struct {
	TotalClaims         int      `json:"total_claims"`
	Supported           []string `json:"supported_claims"`
	Rejected            []string `json:"rejected_claims"`
	Disputed            []string `json:"disputed_claims"`
	Uncertain           []string `json:"uncertain_claims"`
	ConsensusScore      float64  `json:"consensus_score"`
	EvidenceNeededCount int      `json:"evidence_needed_count"`
}

// FinalAnswer is the chairman's synthesis (or its deterministic fallback).
type FinalAnswer struct {
	FinalAnswer      string     `json:"final_answer"`
	SupportingClaims []string   `json:"supporting_claims"`
	UncertainPoints  []string   `json:"uncertain_points"`
	RejectedClaims   []string   `json:"rejected_claims"`
	Citations        []Citation `json:"citations"`
	Confidence       float64    `json:"confidence"`
	ReasoningSummary string     `json:"reasoning_summary"`
}

// StageTiming records one executed stage's wall-clock duration.
// Timings are an ordered list so execution order survives JSON round-trips.
type StageTiming struct {
	Stage   string  `json:"stage"`
	Seconds float64 `json:"seconds"`
}

// Metadata describes how a PipelineResult was produced.
type Metadata struct {
	RequestID      string        `json:"request_id"`
	ProcessingTime float64       `json:"processing_time"` // seconds
	ModelsUsed     []string      `json:"models_used"`
	CacheHit       bool          `json:"cache_hit"`
	CachedAt       string        `json:"cached_at,omitempty"`
	Errors         []string      `json:"errors"`
	Warnings       []string      `json:"warnings"`
	StageTimings   []StageTiming `json:"stage_timings"`
	Timestamp      string        `json:"timestamp"`
}

// PipelineResult is the complete output of one pipeline run.
type PipelineResult struct {
	Query             string             `json:"query"`
	Stage1Opinions    []Stage1Opinion    `json:"stage1_opinions"`
	ParaphrasedClaims []ParaphrasedClaim `json:"paraphrased_claims"`
	ReviewerVerdicts  []ReviewerVerdict  `json:"reviewer_verdicts"`
	Aggregation       Aggregation        `json:"aggregation"`
	FinalAnswer       FinalAnswer        `json:"final_answer"`
	Metadata          Metadata           `json:"metadata"`
}
