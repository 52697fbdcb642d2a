package reliability

import (
	"errors"
	"fmt"
	"time"
)

// FailureClass partitions provider failures by how the caller should react.
type FailureClass string

const (
	// ClassTransient failures may succeed on retry.
	ClassTransient FailureClass = "transient"
	// ClassQuotaExhausted failures will not recover quickly; retrying them
	// only burns the remaining quota.
	ClassQuotaExhausted FailureClass = "quota_exhausted"
	// ClassTerminal failures are neither retryable nor quota related.
	ClassTerminal FailureClass = "terminal"
)

// ProviderError tags a collaborator failure with its class and a stable code
// so callers branch on structure, never on error text.
type ProviderError struct {
	Provider string
	Code     string
	Class    FailureClass
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Code, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify extracts the failure class from err. Unclassified errors are
// treated as transient so a flaky provider gets its retry budget.
func Classify(err error) FailureClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}

// IsQuotaExhausted reports whether err carries the quota class.
func IsQuotaExhausted(err error) bool {
	return Classify(err) == ClassQuotaExhausted
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassForHTTPStatus maps an HTTP status to a failure class.
func ClassForHTTPStatus(code int) FailureClass {
	switch {
	case code == 429:
		return ClassQuotaExhausted
	case IsRetryableHTTPStatus(code):
		return ClassTransient
	default:
		return ClassTerminal
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
