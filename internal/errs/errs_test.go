package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_ClassifiedError(t *testing.T) {
	// Extracts the kind from a taxonomy error, including when wrapped
	err := fmt.Errorf("stage1: %w", Timeout("llama request timed out", nil))
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("kind: got %q, want %q", got, KindTimeout)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	// Unclassified errors map to KindUnknown
	if got := KindOf(errors.New("boom")); got != KindUnknown {
		t.Errorf("kind: got %q, want %q", got, KindUnknown)
	}
}

func TestRetryable_TimeoutAndTransportOnly(t *testing.T) {
	// Only timeout and transport failures are retried
	cases := []struct {
		err  error
		want bool
	}{
		{Timeout("t", nil), true},
		{Transport("t", nil), true},
		{Status("t", 500), false},
		{Parse("t", nil), false},
		{Validation("t"), false},
		{BadInput("t"), false},
		{Pipeline("t"), false},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("Retryable(%v): got %v, want %v", c.err, got, c.want)
		}
	}
}

func TestHTTPStatus_Mapping(t *testing.T) {
	// Each kind maps to its documented status code
	cases := []struct {
		err  error
		want int
	}{
		{Timeout("t", nil), http.StatusGatewayTimeout},
		{Transport("t", nil), http.StatusBadGateway},
		{Status("t", 500), http.StatusBadGateway},
		{Pipeline("all failed"), http.StatusBadGateway},
		{Validation("missing field"), http.StatusUnprocessableEntity},
		{BadInput("too short"), http.StatusBadRequest},
		{Parse("t", nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v): got %d, want %d", c.err, got, c.want)
		}
	}
}

func TestStatus_CarriesCode(t *testing.T) {
	// Status errors keep the backend's HTTP code and embed it in the message
	err := Status("POST /completion", 503)
	if err.Code != 503 {
		t.Errorf("code: got %d, want 503", err.Code)
	}
	if want := "POST /completion: HTTP 503"; err.Error() != want {
		t.Errorf("message: got %q, want %q", err.Error(), want)
	}
}

func TestError_Unwrap(t *testing.T) {
	// errors.Is sees through the taxonomy wrapper
	cause := errors.New("connection refused")
	err := Transport("reviewer request failed", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}
