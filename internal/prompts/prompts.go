// Package prompts builds the prompt payloads for each council stage.
// Builders are pure functions from pipeline inputs to wire payloads; no
// network or state. Response schemas are stated inside the prompts and
// parsed by the role packages.
package prompts

import (
	"fmt"
	"strings"

	"github.com/haricheung/council/internal/llm"
	"github.com/haricheung/council/internal/types"
)

const stage1System = `You are a knowledgeable assistant answering a factual question.

Respond with ONLY a JSON object of this shape:
{
  "answer_text": "your full answer",
  "claims": ["atomic factual claim", "..."],
  "citations": [{"source": "...", "url": "...", "snippet": "..."}]
}

Rules:
- answer_text is a direct, complete answer to the question
- claims lists every individually verifiable proposition in the answer
- citations may be empty
- No markdown, no prose outside the JSON`

// Stage1Generation holds the tunables a stage-1 builder needs.
type Stage1Generation struct {
	MaxTokens   int
	Temperature float64
}

// Stage1Completion builds the local completion payload for a first opinion.
func Stage1Completion(query string, g Stage1Generation) llm.CompletionPayload {
	return llm.CompletionPayload{
		Prompt:      fmt.Sprintf("%s\n\nQuestion: %s", stage1System, query),
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
		Stop:        []string{"</s>", "Question:"},
		Stream:      false,
	}
}

// Stage1Inference builds the hosted inference payload for a first opinion.
func Stage1Inference(query string, g Stage1Generation) llm.InferencePayload {
	return llm.InferencePayload{
		Inputs: fmt.Sprintf("%s\n\nQuestion: %s", stage1System, query),
		Parameters: llm.InferenceParameters{
			MaxNewTokens:   g.MaxTokens,
			Temperature:    g.Temperature,
			TopP:           0.9,
			DoSample:       true,
			ReturnFullText: false,
		},
	}
}

const paraphraseSystem = `You are a claim extractor.
Rewrite the answer below as a list of short, atomic, self-contained claims.

Rules:
- Each claim is one verifiable proposition of at most 20 words
- Strip hedging and qualifiers; keep the factual core
- Return ONLY a JSON object: {"claims": ["...", "..."]}`

// Paraphrase builds the completion payload that reduces an answer to claims.
func Paraphrase(answerText string, g Stage1Generation) llm.CompletionPayload {
	return llm.CompletionPayload{
		Prompt:      fmt.Sprintf("%s\n\nAnswer:\n%s", paraphraseSystem, answerText),
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
		Stop:        []string{"</s>", "Answer:"},
		Stream:      false,
	}
}

const reviewerSystem = `You are an expert fact-checker and peer reviewer.
Your task is to evaluate anonymized claims for factual accuracy.

CRITICAL RULES:
1. Evaluate ONLY the claims provided
2. Do NOT know the source of claims (they are anonymized)
3. Judge each claim independently
4. Base verdicts on factual accuracy and verifiability
5. Return ONLY JSON output

VERDICT TYPES:
- CORRECT: Factually accurate and verifiable
- INCORRECT: Factually wrong or misleading
- UNCERTAIN: Cannot verify with confidence, needs more evidence`

const reviewerTemplate = `Original Question: %s

Evaluate the following anonymized claims for factual accuracy.
Judge each claim independently based on your knowledge.

Claims to review:
%s

For each claim, provide:
1. verdict: CORRECT, INCORRECT, or UNCERTAIN
2. reason: Brief explanation (under 30 words)
3. evidence_needed: true if more evidence would help verify
4. confidence: 0.0-1.0

Return ONLY valid JSON with this structure:
{"reviews": [{"claim_id": "...", "verdict": "CORRECT", "reason": "...", "evidence_needed": false, "confidence": 0.85}]}

IMPORTANT:
- Echo each claim_id exactly as given
- Review ALL claims provided
- No explanations outside the JSON`

// Reviewer builds the completion payload for one reviewer pass over all
// claims. Claims are rendered with their real ids so reviewers can echo
// them verbatim.
func Reviewer(query string, claims []types.ParaphrasedClaim, g Stage1Generation) llm.CompletionPayload {
	var sb strings.Builder
	for _, c := range claims {
		fmt.Fprintf(&sb, "[%s]: %s\n", c.ClaimID, c.CanonicalText)
	}
	user := fmt.Sprintf(reviewerTemplate, query, strings.TrimRight(sb.String(), "\n"))
	return llm.CompletionPayload{
		Prompt:      reviewerSystem + "\n\n" + user,
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
		Stop:        []string{"</s>", "Original Question:", "Claims to review:"},
		Stream:      false,
	}
}

// Chairman builds the free-form synthesis prompt. Stage-1 opinions are
// anonymized as "Expert 1..n"; reviewers keep their labels.
func Chairman(
	query string,
	opinions []types.Stage1Opinion,
	claims []types.ParaphrasedClaim,
	verdicts []types.ReviewerVerdict,
	agg types.Aggregation,
) string {
	var sb strings.Builder

	sb.WriteString("You are the chairman of a model council. Synthesize the final answer.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\n", query)

	sb.WriteString("Expert opinions:\n")
	for i, op := range opinions {
		fmt.Fprintf(&sb, "Expert %d: %s\n", i+1, op.AnswerText)
	}

	sb.WriteString("\nCanonical claims:\n")
	for _, c := range claims {
		fmt.Fprintf(&sb, "[%s]: %s\n", c.ClaimID, c.CanonicalText)
	}

	sb.WriteString("\nReviewer verdicts:\n")
	for _, v := range verdicts {
		fmt.Fprintf(&sb, "%s:\n", v.ReviewerLabel)
		for _, r := range v.Reviews {
			fmt.Fprintf(&sb, "  [%s] %s (confidence %.2f): %s\n", r.ClaimID, r.Verdict, r.Confidence, r.Reason)
		}
	}

	fmt.Fprintf(&sb, "\nAggregation: %d supported, %d rejected, %d disputed, %d uncertain; consensus score %.3f; %d claims need evidence.\n",
		len(agg.Supported), len(agg.Rejected), len(agg.Disputed), len(agg.Uncertain), agg.ConsensusScore, agg.EvidenceNeededCount)

	sb.WriteString(`
Compose the best final answer from the verified evidence. Prefer supported
claims, flag uncertain points, and exclude rejected claims.

Return ONLY a JSON object:
{
  "final_answer": "...",
  "supporting_claims": ["..."],
  "uncertain_points": ["..."],
  "rejected_claims": ["..."],
  "citations": [{"source": "...", "url": "...", "snippet": "..."}],
  "confidence": 0.0,
  "reasoning_summary": "..."
}`)
	return sb.String()
}
