package chairman

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haricheung/council/internal/config"
	"github.com/haricheung/council/internal/llm"
	"github.com/haricheung/council/internal/types"
)

var noRetry = llm.RetryPolicy{MaxRetries: 0, Delay: time.Millisecond}

func testConfig() *config.Settings {
	return &config.Settings{
		EnableChairman: true,
		ChairmanLabel:  "Gemini-1.5-Pro",
		ChairmanModel:  "gemini-1.5-pro",
	}
}

func chatClient(url string) *llm.ChatClient {
	return llm.NewChatClient("Gemini-1.5-Pro", url, "key", "gemini-1.5-pro", llm.GenerationConfig{}, time.Second, noRetry)
}

func TestParse_DefaultsApplied(t *testing.T) {
	// Missing confidence defaults to 0.7, missing reasoning gets the stock line
	got, err := parse(`{"final_answer": "Paris is the capital of France."}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Confidence != defaultConfidence {
		t.Errorf("confidence: got %v, want %v", got.Confidence, defaultConfidence)
	}
	if got.ReasoningSummary != defaultReasoning {
		t.Errorf("reasoning: got %q", got.ReasoningSummary)
	}
	if got.SupportingClaims == nil || got.Citations == nil {
		t.Error("list fields must be empty slices, not nil")
	}
}

func TestParse_MissingFinalAnswerFails(t *testing.T) {
	// A response without final_answer is unusable
	if _, err := parse(`{"confidence": 0.9}`); err == nil {
		t.Error("expected error for missing final_answer")
	}
}

func TestParse_CapsListFields(t *testing.T) {
	// supporting/uncertain/rejected/citations are capped at 10/5/5/10
	var sb strings.Builder
	sb.WriteString(`{"final_answer": "a", "supporting_claims": [`)
	for i := 0; i < 12; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`"s"`)
	}
	sb.WriteString(`], "uncertain_points": ["u","u","u","u","u","u"], "rejected_claims": ["r","r","r","r","r","r","r"]}`)
	got, err := parse(sb.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.SupportingClaims) != maxSupporting {
		t.Errorf("supporting: got %d, want %d", len(got.SupportingClaims), maxSupporting)
	}
	if len(got.UncertainPoints) != maxUncertain {
		t.Errorf("uncertain: got %d, want %d", len(got.UncertainPoints), maxUncertain)
	}
	if len(got.RejectedClaims) != maxRejected {
		t.Errorf("rejected: got %d, want %d", len(got.RejectedClaims), maxRejected)
	}
}

func TestFallback_JoinsFirstThreeSupported(t *testing.T) {
	// The fallback answer joins the first three supported claims
	agg := types.Aggregation{
		Supported: []string{"One.", "Two.", "Three.", "Four."},
		Uncertain: []string{"U1.", "U2.", "U3.", "U4."},
		Rejected:  []string{"R1.", "R2.", "R3.", "R4."},
	}
	got := Fallback(agg)
	if got.FinalAnswer != "Based on verified claims: One. Two. Three." {
		t.Errorf("final_answer: got %q", got.FinalAnswer)
	}
	if len(got.SupportingClaims) != 4 {
		t.Errorf("supporting: got %d, want 4 (capped at 5)", len(got.SupportingClaims))
	}
	if len(got.UncertainPoints) != 3 || len(got.RejectedClaims) != 3 {
		t.Errorf("caps: uncertain=%d rejected=%d, want 3 and 3", len(got.UncertainPoints), len(got.RejectedClaims))
	}
	if got.Confidence != fallbackConfidence {
		t.Errorf("confidence: got %v, want %v", got.Confidence, fallbackConfidence)
	}
	if got.ReasoningSummary != fallbackReasoning {
		t.Errorf("reasoning: got %q", got.ReasoningSummary)
	}
}

func TestFallback_NoSupportedClaims(t *testing.T) {
	// Without supported claims the fallback states it cannot answer
	got := Fallback(types.Aggregation{})
	if got.FinalAnswer != fallbackNoClaims {
		t.Errorf("final_answer: got %q", got.FinalAnswer)
	}
	if got.Citations == nil || len(got.Citations) != 0 {
		t.Error("citations must be an empty slice")
	}
}

func TestSynthesize_ParsesBackendResponse(t *testing.T) {
	// A healthy chairman backend produces the parsed synthesis
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "{\"final_answer\": \"Synthesized.\", \"confidence\": 0.85}"}`))
	}))
	defer srv.Close()

	s := New(testConfig(), chatClient(srv.URL))
	got := s.Synthesize(context.Background(), "q", nil, nil, nil, types.Aggregation{})
	if got.FinalAnswer != "Synthesized." {
		t.Errorf("final_answer: got %q", got.FinalAnswer)
	}
	if got.Confidence != 0.85 {
		t.Errorf("confidence: got %v", got.Confidence)
	}
}

func TestSynthesize_BackendErrorFallsBack(t *testing.T) {
	// A dead chairman backend degrades to the deterministic fallback
	s := New(testConfig(), chatClient("http://127.0.0.1:1"))
	agg := types.Aggregation{Supported: []string{"Claim one."}}
	got := s.Synthesize(context.Background(), "q", nil, nil, nil, agg)
	if got.FinalAnswer != "Based on verified claims: Claim one." {
		t.Errorf("final_answer: got %q", got.FinalAnswer)
	}
}

func TestSynthesize_DisabledChairmanFallsBack(t *testing.T) {
	// ENABLE_CHAIRMAN=false skips the backend entirely
	cfg := testConfig()
	cfg.EnableChairman = false
	s := New(cfg, nil)
	got := s.Synthesize(context.Background(), "q", nil, nil, nil, types.Aggregation{})
	if got.FinalAnswer != fallbackNoClaims {
		t.Errorf("final_answer: got %q", got.FinalAnswer)
	}
}
