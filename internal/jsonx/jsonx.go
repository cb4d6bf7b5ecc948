// Package jsonx recovers structured JSON from free-form model output.
//
// Backends rarely return a bare JSON object: they wrap it in markdown fences,
// prepend "Output:"-style chatter, or pad it with prose. Recovery is staged:
// parse the first-{ .. last-} span as-is, then strip decoration and retry.
// When both passes fail the caller's stage-specific degradation applies.
package jsonx

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoObject reports that no JSON object span was found in the input.
var ErrNoObject = errors.New("no JSON object found")

// decorative prefixes some models emit before their JSON payload.
var prefixes = []string{"Output:", "Result:"}

// Unmarshal extracts the outermost JSON object from raw and decodes it into v.
// Step one parses the first-{ to last-} span verbatim; on failure the input is
// cleaned (code fences and decorative prefixes removed) and parsed once more.
//
// Expectations:
//   - Parses a bare JSON object
//   - Parses an object surrounded by prose
//   - Parses an object inside ```json fences
//   - Parses an object behind an "Output:"/"Result:" prefix
//   - Returns an error when no object can be recovered
func Unmarshal(raw string, v any) error {
	if err := extract(raw, v); err == nil {
		return nil
	}
	return extract(clean(raw), v)
}

// extract parses the span between the first '{' and the last '}'.
func extract(s string, v any) error {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ErrNoObject
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}

// clean removes markdown code fences and decorative prefixes.
func clean(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	for _, p := range prefixes {
		s = strings.ReplaceAll(s, p, "")
	}
	return strings.TrimSpace(s)
}
