package prompts

import (
	"strings"
	"testing"

	"github.com/haricheung/council/internal/types"
)

func TestReviewer_RendersRealClaimIDs(t *testing.T) {
	// Claims carry their real ids so reviewers can echo them verbatim
	claims := []types.ParaphrasedClaim{
		{ClaimID: "llama-7b_claim_0", CanonicalText: "Water is H2O."},
		{ClaimID: "gpt-oss-20b_claim_1", CanonicalText: "Ice floats on water."},
	}
	p := Reviewer("What is water?", claims, Stage1Generation{MaxTokens: 512, Temperature: 0.3})
	if !strings.Contains(p.Prompt, "[llama-7b_claim_0]: Water is H2O.") {
		t.Errorf("first claim id missing from prompt:\n%s", p.Prompt)
	}
	if !strings.Contains(p.Prompt, "[gpt-oss-20b_claim_1]: Ice floats on water.") {
		t.Errorf("second claim id missing from prompt:\n%s", p.Prompt)
	}
	if !strings.Contains(p.Prompt, "What is water?") {
		t.Error("original question missing from prompt")
	}
}

func TestReviewer_CarriesGenerationParams(t *testing.T) {
	// The payload carries the reviewer stage's tunables
	p := Reviewer("q", nil, Stage1Generation{MaxTokens: 256, Temperature: 0.1})
	if p.MaxTokens != 256 || p.Temperature != 0.1 {
		t.Errorf("got max_tokens=%d temperature=%v", p.MaxTokens, p.Temperature)
	}
	if p.Stream {
		t.Error("reviewer payloads never stream")
	}
}

func TestChairman_AnonymizesOpinions(t *testing.T) {
	// Stage-1 opinions appear as "Expert N", never by model label
	opinions := []types.Stage1Opinion{
		{ModelLabel: "Llama-7B", AnswerText: "Answer one."},
		{ModelLabel: "GPT-OSS-20B", AnswerText: "Answer two."},
	}
	prompt := Chairman("q", opinions, nil, nil, types.Aggregation{})
	if !strings.Contains(prompt, "Expert 1: Answer one.") {
		t.Error("first opinion not anonymized as Expert 1")
	}
	if !strings.Contains(prompt, "Expert 2: Answer two.") {
		t.Error("second opinion not anonymized as Expert 2")
	}
	if strings.Contains(prompt, "Llama-7B") || strings.Contains(prompt, "GPT-OSS-20B") {
		t.Error("model labels leaked into the chairman prompt")
	}
}

func TestChairman_IncludesAggregationCounts(t *testing.T) {
	// The aggregation summary line carries bucket counts and consensus
	agg := types.Aggregation{
		Supported:      []string{"a", "b"},
		Rejected:       []string{"c"},
		Disputed:       []string{},
		Uncertain:      []string{"d"},
		ConsensusScore: 0.667,
	}
	prompt := Chairman("q", nil, nil, nil, agg)
	if !strings.Contains(prompt, "2 supported, 1 rejected, 0 disputed, 1 uncertain") {
		t.Errorf("aggregation counts missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "0.667") {
		t.Error("consensus score missing")
	}
}

func TestStage1Completion_IncludesQuery(t *testing.T) {
	// The completion prompt embeds the question after the schema instructions
	p := Stage1Completion("Why is the sky blue?", Stage1Generation{MaxTokens: 1024, Temperature: 0.7})
	if !strings.Contains(p.Prompt, "Question: Why is the sky blue?") {
		t.Error("query missing from stage-1 prompt")
	}
	if !strings.Contains(p.Prompt, "answer_text") {
		t.Error("response schema missing from stage-1 prompt")
	}
}

func TestStage1Inference_NeverReturnsFullText(t *testing.T) {
	// Hosted inference asks for the completion only, not the echoed prompt
	p := Stage1Inference("q", Stage1Generation{MaxTokens: 1024, Temperature: 0.7})
	if p.Parameters.ReturnFullText {
		t.Error("return_full_text must be false")
	}
	if !p.Parameters.DoSample || p.Parameters.TopP != 0.9 {
		t.Errorf("sampling params: got %+v", p.Parameters)
	}
}

func TestParaphrase_EmbedsAnswer(t *testing.T) {
	// The paraphrase prompt carries the answer to reduce
	p := Paraphrase("The mitochondria is the powerhouse of the cell.", Stage1Generation{})
	if !strings.Contains(p.Prompt, "The mitochondria is the powerhouse of the cell.") {
		t.Error("answer text missing from paraphrase prompt")
	}
}
