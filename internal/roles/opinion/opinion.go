// Package opinion implements Stage-1 of the council pipeline: every enabled
// first-opinion model answers the query independently. Invokers fan out in
// parallel when both the per-request flag and the global flag allow it, and
// a sibling's failure never cancels the others.
package opinion

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/haricheung/council/internal/config"
	"github.com/haricheung/council/internal/errs"
	"github.com/haricheung/council/internal/jsonx"
	"github.com/haricheung/council/internal/llm"
	"github.com/haricheung/council/internal/prompts"
	"github.com/haricheung/council/internal/types"
)

const rawAnswerLimit = 500 // chars of raw output kept when parsing fails

// Service runs the Stage-1 first-opinion fan-out.
type Service struct {
	cfg    *config.Settings
	local  *llm.CompletionClient
	hosted *llm.InferenceClient
}

// New creates a Stage-1 service over the enabled invokers. Either client may
// be nil when its enable flag is off.
func New(cfg *config.Settings, local *llm.CompletionClient, hosted *llm.InferenceClient) *Service {
	return &Service{cfg: cfg, local: local, hosted: hosted}
}

// call is one pending invoker: a label plus a closure producing raw text.
type call struct {
	label  string
	invoke func(ctx context.Context) (string, error)
}

// outcome pairs one invoker's parsed opinion with its error.
type outcome struct {
	opinion types.Stage1Opinion
	err     error
}

// FirstOpinions runs every enabled Stage-1 invoker and returns their parsed
// opinions in enabled-flag order.
//
// Expectations:
//   - No enabled invokers → Pipeline error
//   - skip_failed_models drops failed invokers; otherwise the first error
//     propagates
//   - Every invoker failing → Pipeline("All Stage-1 models failed")
//   - JSON parse failure never fails an invoker: the raw response (truncated)
//     becomes the answer with meta.parse_error set
func (s *Service) FirstOpinions(ctx context.Context, query, requestID string, opts types.QueryOptions) ([]types.Stage1Opinion, error) {
	gen := prompts.Stage1Generation{
		MaxTokens:   s.cfg.Stage1MaxTokens,
		Temperature: s.cfg.Stage1Temperature,
	}

	var calls []call
	if s.cfg.EnableStage1Local && s.local != nil {
		label := s.local.Label()
		calls = append(calls, call{label: label, invoke: func(ctx context.Context) (string, error) {
			return s.local.Generate(ctx, prompts.Stage1Completion(query, gen))
		}})
	}
	if s.cfg.EnableStage1Hosted && s.hosted != nil {
		label := s.hosted.Label()
		calls = append(calls, call{label: label, invoke: func(ctx context.Context) (string, error) {
			return s.hosted.Generate(ctx, prompts.Stage1Inference(query, gen))
		}})
	}
	if len(calls) == 0 {
		return nil, errs.Pipeline("no Stage-1 models enabled")
	}

	outcomes := make([]outcome, len(calls))
	run := func(i int) {
		raw, err := calls[i].invoke(ctx)
		if err != nil {
			outcomes[i] = outcome{err: err}
			return
		}
		outcomes[i] = outcome{opinion: parseOpinion(raw, calls[i].label)}
	}

	if opts.EnableParallel && s.cfg.ParallelStage1 {
		var wg sync.WaitGroup
		for i := range calls {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range calls {
			run(i)
		}
	}

	var opinions []types.Stage1Opinion
	for i, o := range outcomes {
		if o.err != nil {
			slog.Warn("[STAGE1] model failed", "request_id", requestID, "model", calls[i].label, "error", o.err)
			if !opts.SkipFailedModels {
				return nil, o.err
			}
			continue
		}
		opinions = append(opinions, o.opinion)
	}
	if len(opinions) == 0 {
		return nil, errs.Pipeline("All Stage-1 models failed")
	}
	return opinions, nil
}

// parseOpinion decodes one Stage-1 response. Parse failure is not an error:
// the raw text (bounded) stands in as the answer and the opinion is flagged.
func parseOpinion(raw, label string) types.Stage1Opinion {
	var parsed struct {
		AnswerText string           `json:"answer_text"`
		Claims     []string         `json:"claims"`
		Citations  []types.Citation `json:"citations"`
	}
	if err := jsonx.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("[STAGE1] unparseable response, keeping raw text", "model", label, "error", err)
		return types.Stage1Opinion{
			ModelLabel: label,
			AnswerText: truncate(raw, rawAnswerLimit),
			Claims:     []string{},
			Citations:  []types.Citation{},
			Meta:       types.OpinionMeta{ParseError: true},
		}
	}
	if parsed.Claims == nil {
		parsed.Claims = []string{}
	}
	if parsed.Citations == nil {
		parsed.Citations = []types.Citation{}
	}
	return types.Stage1Opinion{
		ModelLabel: label,
		AnswerText: parsed.AnswerText,
		Claims:     parsed.Claims,
		Citations:  parsed.Citations,
	}
}

// truncate bounds s to n characters without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
