package llm

import (
	"context"
	"fmt"
	"strings"
)

// ErrorKind classifies LLM failures for retry policy.
type ErrorKind string

const (
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindQuota     ErrorKind = "quota_exhausted"
	ErrorKindServer    ErrorKind = "server"
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindBadInput  ErrorKind = "bad_input"
	ErrorKindUnknown   ErrorKind = "unknown"
)

// LLMError wraps a provider failure with a retry classification.
type LLMError struct {
	Kind      ErrorKind
	Retryable bool
	Err       error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm error (%s, retryable=%t): %v", e.Kind, e.Retryable, e.Err)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// classifyError maps provider errors onto the taxonomy. Timeouts, 5xx, and
// rate limits are retryable; auth and bad-input failures are not.
func classifyError(err error) *LLMError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case err == context.DeadlineExceeded || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return &LLMError{Kind: ErrorKindTimeout, Retryable: true, Err: err}
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted"):
		if strings.Contains(msg, "quota") {
			return &LLMError{Kind: ErrorKindQuota, Retryable: false, Err: err}
		}
		return &LLMError{Kind: ErrorKindRateLimit, Retryable: true, Err: err}
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "internal"):
		return &LLMError{Kind: ErrorKindServer, Retryable: true, Err: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "api key"):
		return &LLMError{Kind: ErrorKindAuth, Retryable: false, Err: err}
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		return &LLMError{Kind: ErrorKindBadInput, Retryable: false, Err: err}
	default:
		return &LLMError{Kind: ErrorKindUnknown, Retryable: false, Err: err}
	}
}
