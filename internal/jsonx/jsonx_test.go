package jsonx

import "testing"

type payload struct {
	AnswerText string   `json:"answer_text"`
	Claims     []string `json:"claims"`
}

func TestUnmarshal_BareObject(t *testing.T) {
	// Parses a bare JSON object with no decoration
	var p payload
	err := Unmarshal(`{"answer_text": "Paris", "claims": ["Paris is in France."]}`, &p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AnswerText != "Paris" || len(p.Claims) != 1 {
		t.Errorf("got %+v", p)
	}
}

func TestUnmarshal_ObjectSurroundedByProse(t *testing.T) {
	// Parses the first-{ to last-} span when prose pads the object
	var p payload
	err := Unmarshal(`Sure! Here is the answer: {"answer_text": "42"} Hope that helps.`, &p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AnswerText != "42" {
		t.Errorf("answer_text: got %q, want 42", p.AnswerText)
	}
}

func TestUnmarshal_MarkdownFences(t *testing.T) {
	// Parses an object wrapped in ```json fences
	var p payload
	raw := "```json\n{\"answer_text\": \"fenced\"}\n```"
	if err := Unmarshal(raw, &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AnswerText != "fenced" {
		t.Errorf("answer_text: got %q, want fenced", p.AnswerText)
	}
}

func TestUnmarshal_OutputPrefix(t *testing.T) {
	// Strips an "Output:" prefix before the retry parse
	var p payload
	raw := "Output: ```json\n{\"answer_text\": \"prefixed\"}```"
	if err := Unmarshal(raw, &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AnswerText != "prefixed" {
		t.Errorf("answer_text: got %q, want prefixed", p.AnswerText)
	}
}

func TestUnmarshal_NoObject(t *testing.T) {
	// Returns an error when the input holds no JSON object at all
	var p payload
	if err := Unmarshal("I don't know the answer.", &p); err == nil {
		t.Error("expected error for input without an object")
	}
}

func TestUnmarshal_MalformedObject(t *testing.T) {
	// Returns an error when the span is not valid JSON even after cleanup
	var p payload
	if err := Unmarshal(`{"answer_text": "unterminated}`, &p); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
