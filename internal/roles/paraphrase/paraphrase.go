// Package paraphrase implements the claim-extraction stage: each Stage-1
// answer is reduced to atomic canonical claims by the paraphrase backend.
// Opinions are processed one at a time so each origin-model label flows
// cleanly into its claim ids, and a per-opinion failure degrades to a
// sentence-split fallback rather than aborting the stage.
package paraphrase

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

const (
	fallbackMaxClaims = 5  // sentence-split fallback keeps at most this many
	fallbackMinLen    = 10 // and drops segments at or under this length
)

// Service extracts canonical claims from Stage-1 opinions.
type Service struct {
	cfg    *config.Settings
	client *llm.CompletionClient
}

// New creates the paraphrase service.
func New(cfg *config.Settings, client *llm.CompletionClient) *Service {
	return &Service{cfg: cfg, client: client}
}

// ExtractAll paraphrases every opinion in order and returns the flat claim
// list. Per-opinion failures never abort the stage; a fully failed stage
// yields an empty list.
func (s *Service) ExtractAll(ctx context.Context, opinions []types.Stage1Opinion) []types.ParaphrasedClaim {
	var all []types.ParaphrasedClaim
	for _, op := range opinions {
		all = append(all, s.extract(ctx, op)...)
	}
	return all
}

// extract paraphrases one opinion into claims, falling back to sentence
// splitting on backend error or unparseable output.
func (s *Service) extract(ctx context.Context, op types.Stage1Opinion) []types.ParaphrasedClaim {
	gen := prompts.Stage1Generation{
		MaxTokens:   s.cfg.ParaphraseMaxTokens,
		Temperature: s.cfg.ParaphraseTemperature,
	}
	raw, err := s.client.Generate(ctx, prompts.Paraphrase(op.AnswerText, gen))
	if err != nil {
		slog.Warn("[PARAPHRASE] backend failed, using sentence fallback", "model", op.ModelLabel, "error", err)
		return fallbackClaims(op)
	}

	var parsed struct {
		Claims []string `json:"claims"`
	}
	if err := jsonx.Unmarshal(raw, &parsed); err != nil || parsed.Claims == nil {
		slog.Warn("[PARAPHRASE] unparseable response, using sentence fallback", "model", op.ModelLabel, "error", err)
		return fallbackClaims(op)
	}

	var claims []types.ParaphrasedClaim
	for _, text := range parsed.Claims {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		claims = append(claims, newClaim(op, len(claims), text))
	}
	return claims
}

// fallbackClaims splits the answer on "." and keeps the first few substantive
// segments. Downstream treats these identically to model-extracted claims.
func fallbackClaims(op types.Stage1Opinion) []types.ParaphrasedClaim {
	var claims []types.ParaphrasedClaim
	for _, seg := range strings.Split(op.AnswerText, ".") {
		seg = strings.TrimSpace(seg)
		if len(seg) <= fallbackMinLen {
			continue
		}
		claims = append(claims, newClaim(op, len(claims), seg+"."))
		if len(claims) == fallbackMaxClaims {
			break
		}
	}
	return claims
}

// newClaim builds one claim record with the id convention
// "<lowercased origin model>_claim_<index>".
func newClaim(op types.Stage1Opinion, index int, canonical string) types.ParaphrasedClaim {
	return types.ParaphrasedClaim{
		ClaimID:       fmt.Sprintf("%s_claim_%d", strings.ToLower(op.ModelLabel), index),
		OriginModel:   op.ModelLabel,
		OriginalText:  op.AnswerText,
		CanonicalText: canonical,
		WordCount:     len(strings.Fields(canonical)),
	}
}
