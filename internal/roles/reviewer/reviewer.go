// Package reviewer implements the peer-review stage: every enabled reviewer
// receives the same anonymized claim list and judges each claim.
//
// Failure handling is split by layer: a backend failure (timeout, transport,
// status) fails that reviewer, which is dropped under skip_failed_models and
// propagated otherwise. Unparseable output instead degrades to one UNCERTAIN
// review per claim. The stage fails only when no reviewer verdict was
// collected at all.
package reviewer

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/haricheung/council/internal/config"
	"github.com/haricheung/council/internal/errs"
	"github.com/haricheung/council/internal/jsonx"
	"github.com/haricheung/council/internal/llm"
	"github.com/haricheung/council/internal/prompts"
	"github.com/haricheung/council/internal/types"
)

const (
	defaultConfidence  = 0.5 // when a review item omits confidence
	fallbackConfidence = 0.3 // for the UNCERTAIN-per-claim fallback
	fallbackReason     = "Unable to verify due to reviewer error"
)

// Service runs the peer-review fan-out.
type Service struct {
	cfg       *config.Settings
	reviewerA *llm.CompletionClient
	reviewerB *llm.CompletionClient
}

// New creates the review service. Either client may be nil when its enable
// flag is off.
func New(cfg *config.Settings, reviewerA, reviewerB *llm.CompletionClient) *Service {
	return &Service{cfg: cfg, reviewerA: reviewerA, reviewerB: reviewerB}
}

// outcome pairs one reviewer's verdict with its error.
type outcome struct {
	verdict types.ReviewerVerdict
	err     error
}

// Review hands the full claim list to every enabled reviewer and collects
// their verdicts in enabled-flag order.
//
// Expectations:
//   - Empty claim list → one empty verdict per enabled reviewer, no backend
//     calls (the pipeline proceeds to an empty aggregation)
//   - Backend failure drops that reviewer under skip_failed_models, else
//     propagates
//   - Unparseable output → fallback UNCERTAIN review per claim
//   - No verdict collected at all → Pipeline("All reviewers failed")
func (s *Service) Review(ctx context.Context, query string, claims []types.ParaphrasedClaim, requestID string, opts types.QueryOptions) ([]types.ReviewerVerdict, error) {
	type reviewer struct {
		label  string
		client *llm.CompletionClient
	}
	var reviewers []reviewer
	if s.cfg.EnableReviewerA && s.reviewerA != nil {
		reviewers = append(reviewers, reviewer{s.cfg.ReviewerALabel, s.reviewerA})
	}
	if s.cfg.EnableReviewerB && s.reviewerB != nil {
		reviewers = append(reviewers, reviewer{s.cfg.ReviewerBLabel, s.reviewerB})
	}
	if len(reviewers) == 0 {
		return nil, errs.Pipeline("no reviewers enabled")
	}

	if len(claims) == 0 {
		verdicts := make([]types.ReviewerVerdict, 0, len(reviewers))
		for _, r := range reviewers {
			verdicts = append(verdicts, types.ReviewerVerdict{
				ReviewerLabel: r.label,
				Reviews:       []types.ReviewItem{},
			})
		}
		return verdicts, nil
	}

	outcomes := make([]outcome, len(reviewers))
	run := func(i int) {
		v, err := s.reviewOne(ctx, reviewers[i].label, reviewers[i].client, query, claims)
		outcomes[i] = outcome{verdict: v, err: err}
	}

	if opts.EnableParallel && s.cfg.ParallelReviewers {
		var wg sync.WaitGroup
		for i := range reviewers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range reviewers {
			run(i)
		}
	}

	var verdicts []types.ReviewerVerdict
	for i, o := range outcomes {
		if o.err != nil {
			slog.Warn("[REVIEW] reviewer failed", "request_id", requestID, "reviewer", reviewers[i].label, "error", o.err)
			if !opts.SkipFailedModels {
				return nil, o.err
			}
			continue
		}
		verdicts = append(verdicts, o.verdict)
	}
	if len(verdicts) == 0 {
		return nil, errs.Pipeline("All reviewers failed")
	}
	return verdicts, nil
}

// reviewOne invokes a single reviewer over all claims. Backend errors return
// as errors; unparseable output degrades to the UNCERTAIN fallback.
func (s *Service) reviewOne(ctx context.Context, label string, client *llm.CompletionClient, query string, claims []types.ParaphrasedClaim) (types.ReviewerVerdict, error) {
	gen := prompts.Stage1Generation{
		MaxTokens:   s.cfg.ReviewerMaxTokens,
		Temperature: s.cfg.ReviewerTemperature,
	}
	raw, err := client.Generate(ctx, prompts.Reviewer(query, claims, gen))
	if err != nil {
		return types.ReviewerVerdict{}, err
	}

	var parsed struct {
		Reviews []rawReview `json:"reviews"`
	}
	if err := jsonx.Unmarshal(raw, &parsed); err != nil || parsed.Reviews == nil {
		slog.Warn("[REVIEW] unparseable response, using uncertain fallback", "reviewer", label, "error", err)
		return fallbackVerdict(label, claims), nil
	}

	reviews := make([]types.ReviewItem, 0, len(parsed.Reviews))
	for _, r := range parsed.Reviews {
		if item, ok := r.validate(); ok {
			reviews = append(reviews, item)
		}
	}
	return types.ReviewerVerdict{
		ReviewerLabel: label,
		Reviews:       reviews,
		Meta:          types.VerdictMeta{TotalReviewed: len(reviews)},
	}, nil
}

// rawReview is one review item as the model produced it, before validation.
// Confidence arrives as arbitrary JSON since models emit numbers or strings.
type rawReview struct {
	ClaimID        string `json:"claim_id"`
	Verdict        string `json:"verdict"`
	Reason         string `json:"reason"`
	EvidenceNeeded bool   `json:"evidence_needed"`
	Confidence     any    `json:"confidence"`
}

// validate keeps an item only when it carries a claim id, a reason, and a
// recognizable verdict. The verdict is normalized to upper case; confidence
// defaults to 0.5 when absent or unparseable.
func (r rawReview) validate() (types.ReviewItem, bool) {
	if r.ClaimID == "" || r.Reason == "" {
		return types.ReviewItem{}, false
	}
	verdict := types.Verdict(strings.ToUpper(r.Verdict))
	if !verdict.Valid() {
		return types.ReviewItem{}, false
	}
	return types.ReviewItem{
		ClaimID:        r.ClaimID,
		Verdict:        verdict,
		Reason:         r.Reason,
		EvidenceNeeded: r.EvidenceNeeded,
		Confidence:     parseConfidence(r.Confidence),
	}, true
}

func parseConfidence(v any) float64 {
	switch c := v.(type) {
	case float64:
		return c
	case string:
		if f, err := strconv.ParseFloat(c, 64); err == nil {
			return f
		}
	}
	return defaultConfidence
}

// fallbackVerdict marks every claim UNCERTAIN when the reviewer's output
// could not be recovered.
func fallbackVerdict(label string, claims []types.ParaphrasedClaim) types.ReviewerVerdict {
	reviews := make([]types.ReviewItem, 0, len(claims))
	for _, c := range claims {
		reviews = append(reviews, types.ReviewItem{
			ClaimID:        c.ClaimID,
			Verdict:        types.VerdictUncertain,
			Reason:         fallbackReason,
			EvidenceNeeded: true,
			Confidence:     fallbackConfidence,
		})
	}
	return types.ReviewerVerdict{
		ReviewerLabel: label,
		Reviews:       reviews,
		Meta:          types.VerdictMeta{TotalReviewed: len(reviews), Fallback: true},
	}
}
