package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haricheung/council/internal/errs"
)

var noRetry = RetryPolicy{MaxRetries: 0, Delay: time.Millisecond}

func TestCompletionClient_ExtractsContentField(t *testing.T) {
	// Prefers the "content" field of a completion response
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": "  hello  "}`))
	}))
	defer srv.Close()

	c := NewCompletionClient("Llama-7B", srv.URL, time.Second, noRetry)
	got, err := c.Generate(context.Background(), CompletionPayload{Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want hello (trimmed)", got)
	}
}

func TestCompletionClient_ExtractsChoicesText(t *testing.T) {
	// Falls back to choices[0].text when content is absent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"text": "from choices"}]}`))
	}))
	defer srv.Close()

	c := NewCompletionClient("Llama-7B", srv.URL, time.Second, noRetry)
	got, err := c.Generate(context.Background(), CompletionPayload{Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from choices" {
		t.Errorf("got %q, want 'from choices'", got)
	}
}

func TestCompletionClient_FallsBackToRawBody(t *testing.T) {
	// Unrecognized shapes return the stringified body
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`just plain text`))
	}))
	defer srv.Close()

	c := NewCompletionClient("Llama-7B", srv.URL, time.Second, noRetry)
	got, err := c.Generate(context.Background(), CompletionPayload{Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "just plain text" {
		t.Errorf("got %q", got)
	}
}

func TestCompletionClient_Non2xxIsStatusError(t *testing.T) {
	// Non-2xx responses surface as Status errors and are never retried
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCompletionClient("Llama-7B", srv.URL, time.Second, RetryPolicy{MaxRetries: 3, Delay: time.Millisecond})
	_, err := c.Generate(context.Background(), CompletionPayload{Prompt: "p"})
	if errs.KindOf(err) != errs.KindStatus {
		t.Errorf("kind: got %q, want status", errs.KindOf(err))
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("backend hits: got %d, want 1 (no retry on status)", n)
	}
}

func TestCompletionClient_TimeoutIsTimeoutKind(t *testing.T) {
	// A deadline exceeded during the call classifies as a timeout
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewCompletionClient("Llama-7B", srv.URL, 20*time.Millisecond, noRetry)
	_, err := c.Generate(context.Background(), CompletionPayload{Prompt: "p"})
	if errs.KindOf(err) != errs.KindTimeout {
		t.Errorf("kind: got %q, want timeout", errs.KindOf(err))
	}
}

func TestCompletionClient_RetriesTransportFailures(t *testing.T) {
	// Connection failures are retried up to the attempt budget
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // port now refuses connections

	c := NewCompletionClient("Llama-7B", srv.URL, time.Second, RetryPolicy{MaxRetries: 2, Delay: time.Millisecond})
	start := time.Now()
	_, err := c.Generate(context.Background(), CompletionPayload{Prompt: "p"})
	if errs.KindOf(err) != errs.KindTransport {
		t.Errorf("kind: got %q, want transport", errs.KindOf(err))
	}
	if time.Since(start) < 2*time.Millisecond {
		t.Error("expected at least two retry delays before giving up")
	}
}

func TestCompletionClient_Health(t *testing.T) {
	// GET /health with 200 is online; anything else is offline
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewCompletionClient("Llama-7B", srv.URL, time.Second, noRetry)
	if !c.Health(context.Background()) {
		t.Error("expected online")
	}

	down := NewCompletionClient("Llama-7B", "http://127.0.0.1:1", time.Second, noRetry)
	if down.Health(context.Background()) {
		t.Error("expected offline for unreachable backend")
	}
}

func TestInferenceClient_ListShape(t *testing.T) {
	// Handles the [{generated_text}] list response shape
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`[{"generated_text": "list shape"}]`))
	}))
	defer srv.Close()

	c := NewInferenceClient("GPT-OSS-20B", srv.URL, "some/model", "tok", time.Second, noRetry)
	got, err := c.Generate(context.Background(), InferencePayload{Inputs: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "list shape" {
		t.Errorf("got %q", got)
	}
}

func TestInferenceClient_DictShape(t *testing.T) {
	// Handles the {generated_text} dict response shape
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generated_text": "dict shape"}`))
	}))
	defer srv.Close()

	c := NewInferenceClient("GPT-OSS-20B", srv.URL, "some/model", "tok", time.Second, noRetry)
	got, err := c.Generate(context.Background(), InferencePayload{Inputs: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dict shape" {
		t.Errorf("got %q", got)
	}
}

func TestInferenceClient_StripsEchoedPrompt(t *testing.T) {
	// When the backend echoes the prompt, only the completion remains
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"generated_text": "What is water? Water is H2O."}]`))
	}))
	defer srv.Close()

	c := NewInferenceClient("GPT-OSS-20B", srv.URL, "some/model", "tok", time.Second, noRetry)
	got, err := c.Generate(context.Background(), InferencePayload{Inputs: "What is water?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Water is H2O." {
		t.Errorf("got %q, want prompt stripped", got)
	}
}

func TestInferenceClient_Health503IsOnline(t *testing.T) {
	// 503 means the hosted model is loading, which still counts as online
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewInferenceClient("GPT-OSS-20B", srv.URL, "some/model", "tok", time.Second, noRetry)
	if !c.Health(context.Background()) {
		t.Error("expected 503 to count as online")
	}
}

func TestChatClient_Unconfigured(t *testing.T) {
	// Without a URL and key the chat client fails fast and reports unhealthy
	c := NewChatClient("Gemini-1.5-Pro", "", "", "gemini-1.5-pro", GenerationConfig{}, time.Second, noRetry)
	if c.Configured() {
		t.Error("expected unconfigured")
	}
	if _, err := c.Generate(context.Background(), "hi"); err == nil {
		t.Error("expected error from unconfigured client")
	}
	if c.Health(context.Background()) {
		t.Error("expected unhealthy")
	}
}

func TestChatClient_GenerateParsesText(t *testing.T) {
	// Parses the {text} response of the chat endpoint
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "synthesized answer"}`))
	}))
	defer srv.Close()

	c := NewChatClient("Gemini-1.5-Pro", srv.URL, "key", "gemini-1.5-pro", GenerationConfig{Temperature: 0.3}, time.Second, noRetry)
	got, err := c.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "synthesized answer" {
		t.Errorf("got %q", got)
	}
}
