// Package providers contains the shared plumbing for the per-vendor wire
// adapters: JSON and streaming HTTP helpers, structured status errors with
// Retry-After parsing, the mandatory error classification table, secret
// handle resolution, and outcome construction. Dialect-specific encoders and
// decoders live in the subpackages openaicompat, anthropic, and googleai.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// Invoker is the uniform capability surface over a provider dialect. Invoke
// performs exactly one call: failures are encoded in the outcome, never
// returned as Go errors, and the adapter never retries. Retry policy lives
// in the executor so budget bookkeeping stays centralized.
type Invoker interface {
	ID() string
	Invoke(ctx context.Context, target eval.ProviderTarget, test eval.TestCase) eval.CallOutcome
}

// EstimateTokens is the shared chars/4 heuristic used when a provider
// response omits usage counts: ceil(len/4).
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// StatusError captures a non-2xx HTTP status from a provider response.
// The transport layer returns it so Classify can inspect status and body.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, truncate(e.Body, 200))
}

// ParseRetryAfter records the Retry-After header value (delta-seconds form)
// on the error. HTTP-date forms are ignored.
func (e *StatusError) ParseRetryAfter(header string) {
	if header == "" {
		return
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		e.RetryAfterSecs = secs
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryAfterHint extracts a rate-limit backoff hint from an error message
// chain, if any.
func RetryAfterHint(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfterSecs > 0 {
		return time.Duration(se.RetryAfterSecs) * time.Second
	}
	return 0
}

// Classify maps a transport or decode error onto the outcome error kinds.
// The mapping is mandatory and identical across dialects; dialect adapters
// only feed it their vendor-specific body markers via the marker arguments.
func Classify(err error) eval.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return eval.ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return eval.ErrTimeout
	}

	var se *StatusError
	if errors.As(err, &se) {
		body := strings.ToLower(se.Body)
		switch {
		case se.StatusCode == 408 || se.StatusCode == 504:
			return eval.ErrTimeout
		case se.StatusCode == 429 || se.StatusCode == 529:
			return eval.ErrRateLimited
		case se.StatusCode == 401 || se.StatusCode == 403:
			return eval.ErrAuthentication
		case se.StatusCode == 400 && isContextMarker(body):
			return eval.ErrContextExceeded
		case se.StatusCode == 400 && isSafetyMarker(body):
			return eval.ErrContentFiltered
		case se.StatusCode >= 500:
			return eval.ErrServer
		default:
			return eval.ErrUnknown
		}
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return eval.ErrInvalidResponse
	}

	// url.Error wrapping a dial/DNS/TLS failure, or a plain transport error.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"),
		strings.Contains(msg, "timeout awaiting response"):
		return eval.ErrTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "tls"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "dial tcp"),
		strings.Contains(msg, "eof"):
		return eval.ErrConnection
	}
	return eval.ErrUnknown
}

func isContextMarker(body string) bool {
	return strings.Contains(body, "context length") ||
		strings.Contains(body, "context_length_exceeded") ||
		strings.Contains(body, "prompt is too long") ||
		strings.Contains(body, "prompt_too_long") ||
		strings.Contains(body, "maximum context")
}

func isSafetyMarker(body string) bool {
	return strings.Contains(body, "content_filter") ||
		strings.Contains(body, "content management policy") ||
		strings.Contains(body, "safety")
}

// DecodeError marks a response that arrived with HTTP 200 but could not be
// parsed into the dialect's expected shape.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "invalid provider response: " + e.Reason
}
