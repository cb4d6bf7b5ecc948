// Package chairman implements the final synthesis stage. The chairman model
// composes the answer from the whole evidence trail; any failure along the
// way (disabled backend, call error, unparseable or incomplete output)
// degrades to a deterministic synthesis from the aggregation alone, so the
// stage itself never fails.
package chairman

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haricheung/council/internal/config"
	"github.com/haricheung/council/internal/jsonx"
	"github.com/haricheung/council/internal/llm"
	"github.com/haricheung/council/internal/prompts"
	"github.com/haricheung/council/internal/types"
)

// Caps on list fields of a parsed chairman response.
const (
	maxSupporting = 10
	maxUncertain  = 5
	maxRejected   = 5
	maxCitations  = 10
)

const (
	defaultConfidence  = 0.7
	fallbackConfidence = 0.5
	defaultReasoning   = "Synthesized based on supported claims and peer review."
	fallbackReasoning  = "Fallback synthesis due to chairman error."
	fallbackNoClaims   = "Unable to provide a confident answer due to insufficient verified claims."
)

// Service runs the chairman synthesis.
type Service struct {
	cfg    *config.Settings
	client *llm.ChatClient
}

// New creates the synthesis service. A nil client means the chairman is
// disabled and every request takes the fallback path.
func New(cfg *config.Settings, client *llm.ChatClient) *Service {
	return &Service{cfg: cfg, client: client}
}

// Synthesize produces the final answer. It never returns an error; the
// fallback covers every failure mode.
func (s *Service) Synthesize(
	ctx context.Context,
	query string,
	opinions []types.Stage1Opinion,
	claims []types.ParaphrasedClaim,
	verdicts []types.ReviewerVerdict,
	agg types.Aggregation,
) types.FinalAnswer {
	if !s.cfg.EnableChairman || s.client == nil || !s.client.Configured() {
		slog.Warn("[CHAIRMAN] not available, using fallback synthesis")
		return Fallback(agg)
	}

	raw, err := s.client.Generate(ctx, prompts.Chairman(query, opinions, claims, verdicts, agg))
	if err != nil {
		slog.Warn("[CHAIRMAN] synthesis call failed, using fallback", "error", err)
		return Fallback(agg)
	}

	answer, err := parse(raw)
	if err != nil {
		slog.Warn("[CHAIRMAN] unusable response, using fallback", "error", err)
		return Fallback(agg)
	}
	slog.Info("[CHAIRMAN] final answer synthesized", "confidence", answer.Confidence)
	return answer
}

// parse decodes and normalizes a chairman response. A response without a
// final_answer is unusable; every other field has a default.
func parse(raw string) (types.FinalAnswer, error) {
	var parsed struct {
		FinalAnswer      string           `json:"final_answer"`
		SupportingClaims []string         `json:"supporting_claims"`
		UncertainPoints  []string         `json:"uncertain_points"`
		RejectedClaims   []string         `json:"rejected_claims"`
		Citations        []types.Citation `json:"citations"`
		Confidence       *float64         `json:"confidence"`
		ReasoningSummary string           `json:"reasoning_summary"`
	}
	if err := jsonx.Unmarshal(raw, &parsed); err != nil {
		return types.FinalAnswer{}, err
	}
	if parsed.FinalAnswer == "" {
		return types.FinalAnswer{}, fmt.Errorf("missing final_answer in chairman response")
	}

	confidence := defaultConfidence
	if parsed.Confidence != nil {
		confidence = *parsed.Confidence
	}
	reasoning := parsed.ReasoningSummary
	if reasoning == "" {
		reasoning = defaultReasoning
	}
	return types.FinalAnswer{
		FinalAnswer:      parsed.FinalAnswer,
		SupportingClaims: capStrings(parsed.SupportingClaims, maxSupporting),
		UncertainPoints:  capStrings(parsed.UncertainPoints, maxUncertain),
		RejectedClaims:   capStrings(parsed.RejectedClaims, maxRejected),
		Citations:        capCitations(parsed.Citations, maxCitations),
		Confidence:       confidence,
		ReasoningSummary: reasoning,
	}, nil
}

// Fallback synthesizes deterministically from the aggregation: the first few
// supported claims become the answer, or a fixed no-confidence sentence when
// nothing was supported.
func Fallback(agg types.Aggregation) types.FinalAnswer {
	final := fallbackNoClaims
	if len(agg.Supported) > 0 {
		final = "Based on verified claims: " + strings.Join(capStrings(agg.Supported, 3), " ")
	}
	return types.FinalAnswer{
		FinalAnswer:      final,
		SupportingClaims: capStrings(agg.Supported, 5),
		UncertainPoints:  capStrings(agg.Uncertain, 3),
		RejectedClaims:   capStrings(agg.Rejected, 3),
		Citations:        []types.Citation{},
		Confidence:       fallbackConfidence,
		ReasoningSummary: fallbackReasoning,
	}
}

func capStrings(s []string, n int) []string {
	if s == nil {
		return []string{}
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

func capCitations(c []types.Citation, n int) []types.Citation {
	if c == nil {
		return []types.Citation{}
	}
	if len(c) > n {
		return c[:n]
	}
	return c
}
