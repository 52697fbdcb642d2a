package reliability

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyProviderError(t *testing.T) {
	pe := &ProviderError{Provider: "llm", Code: "http_429", Class: ClassQuotaExhausted, Err: errors.New("quota")}
	if got := Classify(pe); got != ClassQuotaExhausted {
		t.Fatalf("Classify = %q, want quota_exhausted", got)
	}
	if !IsQuotaExhausted(pe) {
		t.Fatalf("IsQuotaExhausted = false")
	}

	wrapped := fmt.Errorf("generate: %w", pe)
	if got := Classify(wrapped); got != ClassQuotaExhausted {
		t.Fatalf("Classify(wrapped) = %q, want quota_exhausted", got)
	}
}

func TestClassifyUnknownErrorDefaultsTransient(t *testing.T) {
	if got := Classify(errors.New("mystery")); got != ClassTransient {
		t.Fatalf("Classify = %q, want transient", got)
	}
	if IsQuotaExhausted(errors.New("mystery")) {
		t.Fatalf("plain error classified as quota")
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	pe := &ProviderError{Provider: "synth", Code: "down", Class: ClassTransient, Err: inner}
	if !errors.Is(pe, inner) {
		t.Fatalf("errors.Is should reach the wrapped error")
	}
}

func TestClassForHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want FailureClass
	}{
		{429, ClassQuotaExhausted},
		{500, ClassTransient},
		{502, ClassTransient},
		{503, ClassTransient},
		{504, ClassTransient},
		{400, ClassTerminal},
		{401, ClassTerminal},
		{404, ClassTerminal},
	}
	for _, c := range cases {
		if got := ClassForHTTPStatus(c.code); got != c.want {
			t.Errorf("ClassForHTTPStatus(%d) = %q, want %q", c.code, got, c.want)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	base := 250 * time.Millisecond
	limit := 2 * time.Second

	if got := ExponentialBackoff(0, base, limit); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(1, base, limit); got != 500*time.Millisecond {
		t.Fatalf("attempt 1 = %v, want 500ms", got)
	}
	if got := ExponentialBackoff(2, base, limit); got != time.Second {
		t.Fatalf("attempt 2 = %v, want 1s", got)
	}
	if got := ExponentialBackoff(10, base, limit); got != limit {
		t.Fatalf("attempt 10 = %v, want cap %v", got, limit)
	}
}
