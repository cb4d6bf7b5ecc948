// Package llm holds the invoker clients for the council's model backends.
//
// Three wire contracts exist: a local llama.cpp-style completion endpoint,
// a hosted inference endpoint (bearer-token, generated_text shapes), and a
// hosted chat endpoint used only by the chairman. Every client returns raw
// text; structured parsing is the caller's concern.
//
// Transport-level failures (timeout, connection errors) are retried with a
// constant delay up to the configured attempt budget. Non-2xx statuses and
// anything downstream of a successful read are never retried.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/haricheung/council/internal/errs"
)

// RetryPolicy bounds transport-failure retries for one client.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// retry runs op, retrying transport-level failures per the policy.
// Parse/validation/status failures pass through on the first attempt.
func (p RetryPolicy) retry(ctx context.Context, op func() (string, error)) (string, error) {
	var out string
	attempt := func() error {
		s, err := op()
		if err != nil {
			if errs.Retryable(err) {
				return err // retried by backoff
			}
			return backoff.Permanent(err)
		}
		out = s
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(attempt, b); err != nil {
		return "", err
	}
	return out, nil
}

// classify converts a transport error from http.Client.Do into a taxonomy
// kind. Errors already classified (e.g. Status from postJSON) pass through.
func classify(label string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return errs.Timeout(label+" request timed out", err)
	}
	return errs.Transport(label+" request failed", err)
}

// CompletionPayload is the request body of the local completion endpoint.
type CompletionPayload struct {
	Prompt      string   `json:"prompt"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop"`
	Stream      bool     `json:"stream"`
}

// CompletionClient speaks to a local llama.cpp-style server.
type CompletionClient struct {
	label   string
	baseURL string
	hc      *http.Client
	retry   RetryPolicy
}

// NewCompletionClient creates a client for POST {base}/completion.
func NewCompletionClient(label, baseURL string, timeout time.Duration, retry RetryPolicy) *CompletionClient {
	return &CompletionClient{
		label:   label,
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

// Label returns the model label used in logs and claim ids.
func (c *CompletionClient) Label() string { return c.label }

// Generate posts the payload and returns the generated text.
//
// Expectations:
//   - Extracts "content", then "choices[0].text", then "text", in that order
//   - Falls back to the stringified body when none is present
//   - Trims surrounding whitespace
//   - Non-2xx responses return a Status error
func (c *CompletionClient) Generate(ctx context.Context, p CompletionPayload) (string, error) {
	return c.retry.retry(ctx, func() (string, error) {
		body, err := postJSON(ctx, c.hc, c.baseURL+"/completion", nil, p)
		if err != nil {
			return "", classify(c.label, err)
		}
		return extractCompletionText(body), nil
	})
}

// Health probes GET {base}/health; 200 means online.
func (c *CompletionClient) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// extractCompletionText pulls the generated text out of a completion response.
func extractCompletionText(body []byte) string {
	var out struct {
		Content string `json:"content"`
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch {
	case out.Content != "":
		return strings.TrimSpace(out.Content)
	case len(out.Choices) > 0 && out.Choices[0].Text != "":
		return strings.TrimSpace(out.Choices[0].Text)
	case out.Text != "":
		return strings.TrimSpace(out.Text)
	}
	return strings.TrimSpace(string(body))
}

// InferenceParameters tunes the hosted inference generation.
type InferenceParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

// InferencePayload is the request body of the hosted inference endpoint.
type InferencePayload struct {
	Inputs     string              `json:"inputs"`
	Parameters InferenceParameters `json:"parameters"`
}

// InferenceClient speaks to a hosted inference endpoint with bearer auth.
type InferenceClient struct {
	label string
	url   string // {api_url}/{model}
	token string
	hc    *http.Client
	retry RetryPolicy
}

// NewInferenceClient creates a client for POST {apiURL}/{model}.
func NewInferenceClient(label, apiURL, model, token string, timeout time.Duration, retry RetryPolicy) *InferenceClient {
	if token == "" {
		slog.Warn("[LLM] hosted API token not set", "label", label)
	}
	return &InferenceClient{
		label: label,
		url:   strings.TrimRight(apiURL, "/") + "/" + model,
		token: token,
		hc:    &http.Client{Timeout: timeout},
		retry: retry,
	}
}

// Label returns the model label used in logs and claim ids.
func (c *InferenceClient) Label() string { return c.label }

// Generate posts the payload and returns the generated text.
//
// Expectations:
//   - Accepts a list of {generated_text} objects or a dict with
//     generated_text/text
//   - Strips the echoed input prompt when the backend returns it
//   - Non-2xx responses return a Status error
func (c *InferenceClient) Generate(ctx context.Context, p InferencePayload) (string, error) {
	return c.retry.retry(ctx, func() (string, error) {
		headers := map[string]string{"Authorization": "Bearer " + c.token}
		body, err := postJSON(ctx, c.hc, c.url, headers, p)
		if err != nil {
			return "", classify(c.label, err)
		}
		return extractInferenceText(body, p.Inputs), nil
	})
}

// Health probes GET on the model URL; 200 or 503 (model loading) means online.
func (c *InferenceClient) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusServiceUnavailable
}

// extractInferenceText handles the hosted endpoint's two response shapes.
func extractInferenceText(body []byte, inputs string) string {
	var list []struct {
		GeneratedText string `json:"generated_text"`
	}
	var text string
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		text = list[0].GeneratedText
	} else {
		var dict struct {
			GeneratedText string `json:"generated_text"`
			Text          string `json:"text"`
		}
		if err := json.Unmarshal(body, &dict); err == nil {
			text = dict.GeneratedText
			if text == "" {
				text = dict.Text
			}
		}
	}
	if text == "" {
		text = string(body)
	}
	// Some hosted models echo the prompt before their completion.
	if inputs != "" {
		text = strings.Replace(text, inputs, "", 1)
	}
	return strings.TrimSpace(text)
}

// GenerationConfig tunes the chat endpoint.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	CandidateCount  int     `json:"candidate_count"`
}

// ChatClient speaks to the hosted chat-style endpoint used for synthesis.
type ChatClient struct {
	label  string
	url    string
	apiKey string
	model  string
	config GenerationConfig
	hc     *http.Client
	retry  RetryPolicy
}

// NewChatClient creates a chat client. An empty url or apiKey leaves the
// client unconfigured; Generate then fails and callers fall back.
func NewChatClient(label, url, apiKey, model string, cfg GenerationConfig, timeout time.Duration, retry RetryPolicy) *ChatClient {
	if apiKey == "" {
		slog.Warn("[LLM] chat API key not set", "label", label)
	}
	cfg.CandidateCount = 1
	return &ChatClient{
		label:  label,
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		model:  model,
		config: cfg,
		hc:     &http.Client{Timeout: timeout},
		retry:  retry,
	}
}

// Label returns the model label used in logs.
func (c *ChatClient) Label() string { return c.label }

// Configured reports whether the client has a URL and key to call.
func (c *ChatClient) Configured() bool { return c.url != "" && c.apiKey != "" }

// Generate sends a free-form prompt and returns the response text.
func (c *ChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", errs.Transport(c.label+" not configured", nil)
	}
	payload := struct {
		Model            string           `json:"model"`
		Prompt           string           `json:"prompt"`
		GenerationConfig GenerationConfig `json:"generation_config"`
	}{Model: c.model, Prompt: prompt, GenerationConfig: c.config}

	return c.retry.retry(ctx, func() (string, error) {
		headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
		body, err := postJSON(ctx, c.hc, c.url, headers, payload)
		if err != nil {
			return "", classify(c.label, err)
		}
		var out struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.Text == "" {
			return strings.TrimSpace(string(body)), nil
		}
		return strings.TrimSpace(out.Text), nil
	})
}

// Health sends a minimal generation; online when it returns any text.
func (c *ChatClient) Health(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	text, err := c.Generate(ctx, "Test")
	return err == nil && text != ""
}

// postJSON marshals payload, posts it, and returns the response body.
// Non-2xx statuses surface as Status errors carrying the code.
func postJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Transport("marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, errs.Transport("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Status(fmt.Sprintf("POST %s", url), resp.StatusCode)
	}
	return body, nil
}
