// Package eval defines the shared domain types of the evaluation core:
// provider targets, test cases, execution configuration, per-call outcomes,
// job plans, and aggregated reports. Provider adapters, the executor, and the
// agents all exchange these shapes.
package eval

import (
	"time"
)

// ProviderName identifies a backend vendor family.
type ProviderName string

const (
	ProviderOpenAI     ProviderName = "openai"
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderGoogle     ProviderName = "google"
	ProviderMistral    ProviderName = "mistral"
	ProviderGroq       ProviderName = "groq"
	ProviderTogether   ProviderName = "together"
	ProviderPerplexity ProviderName = "perplexity"
	ProviderAzure      ProviderName = "azure"
	ProviderCustom     ProviderName = "custom"
)

// KnownProviders lists every recognized provider name.
var KnownProviders = []ProviderName{
	ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderMistral,
	ProviderGroq, ProviderTogether, ProviderPerplexity, ProviderAzure,
	ProviderCustom,
}

// Valid reports whether p is a recognized provider name.
func (p ProviderName) Valid() bool {
	for _, k := range KnownProviders {
		if p == k {
			return true
		}
	}
	return false
}

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	ErrTimeout         ErrorKind = "timeout"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrContextExceeded ErrorKind = "context_exceeded"
	ErrInvalidResponse ErrorKind = "invalid_response"
	ErrServer          ErrorKind = "server_error"
	ErrConnection      ErrorKind = "connection_error"
	ErrAuthentication  ErrorKind = "authentication_error"
	ErrContentFiltered ErrorKind = "content_filtered"
	ErrUnknown         ErrorKind = "unknown"
)

// Retryable reports whether the executor may retry a call that failed with
// this kind. Authentication failures quarantine the target instead; context
// overflow and safety blocks are deterministic and never retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrTimeout, ErrRateLimited, ErrServer, ErrConnection:
		return true
	}
	return false
}

// FinishReason mirrors the provider-reported completion stop cause.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishError         FinishReason = "error"
)

// Constraint records an execution-level condition that limited or degraded a
// job. Constraints surface on the decision record, never as errors.
type Constraint string

const (
	ConstraintMaxDurationExceeded Constraint = "max_duration_exceeded"
	ConstraintMaxCostExceeded     Constraint = "max_cost_exceeded"
	ConstraintRateLimitApplied    Constraint = "rate_limit_applied"
	ConstraintFailFastTriggered   Constraint = "fail_fast_triggered"
	ConstraintWarmUpSkipped       Constraint = "warm_up_skipped"
	ConstraintConcurrencyLimited  Constraint = "concurrency_limited"
	ConstraintProviderUnavailable Constraint = "provider_unavailable"
	ConstraintMaxSamplesExceeded  Constraint = "max_samples_exceeded"
	ConstraintTimeoutExceeded     Constraint = "timeout_exceeded"
	ConstraintSampleMismatch      Constraint = "sample_mismatch"
	ConstraintLowConfidence       Constraint = "low_confidence_result"
)

// PriorityOrder controls how (target, test, iteration) tuples are enqueued.
type PriorityOrder string

const (
	ByTargetThenTest PriorityOrder = "by_target_then_test"
	ByTestThenTarget PriorityOrder = "by_test_then_target"
	Interleaved      PriorityOrder = "interleaved"
)

// ProviderTarget selects one backend. Immutable once built.
type ProviderTarget struct {
	ProviderName ProviderName `json:"provider_name"`
	ModelID      string       `json:"model_id"`
	BaseURL      string       `json:"base_url,omitempty"`
	// APIKeyRef is an opaque handle resolved to an environment variable
	// named <REF>_API_KEY. The key itself is never stored or logged.
	APIKeyRef  string `json:"api_key_ref,omitempty"`
	TimeoutMs  int    `json:"timeout_ms"`
	MaxRetries int    `json:"max_retries"`
}

// Key returns the grouping key (provider, model) for report aggregation.
func (t ProviderTarget) Key() string {
	return string(t.ProviderName) + "/" + t.ModelID
}

// TestCase is one prompt specification. Immutable once built.
type TestCase struct {
	TestID        string   `json:"test_id"`
	Prompt        string   `json:"prompt"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// ExecutionConfig holds the recognized execution options. Unknown keys are
// rejected at the validation boundary so the decision inputs hash stays
// stable across callers.
type ExecutionConfig struct {
	Concurrency       int      `json:"concurrency"`
	WarmUpRuns        int      `json:"warm_up_runs"`
	IterationsPerTest int      `json:"iterations_per_test"`
	SaveResponses     bool     `json:"save_responses"`
	FailFast          bool     `json:"fail_fast"`
	MaxDurationMs     *int64   `json:"max_duration_ms,omitempty"`
	MaxTotalCostUSD   *float64 `json:"max_total_cost_usd,omitempty"`
	MaxTotalRequests  *int     `json:"max_total_requests,omitempty"`
	RequestDelayMs    *int     `json:"request_delay_ms,omitempty"`
}

// DefaultExecutionConfig returns the documented defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		Concurrency:       1,
		WarmUpRuns:        0,
		IterationsPerTest: 1,
		SaveResponses:     true,
		FailFast:          false,
	}
}

// CallOutcome is the result of a single (target, test, iteration) invocation.
// Immutable once published by the executor.
type CallOutcome struct {
	TargetRef string `json:"target_ref"`
	TestRef   string `json:"test_ref"`
	Iteration int    `json:"iteration"`

	Success      bool         `json:"success"`
	Content      string       `json:"content,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`

	LatencyMs       float64  `json:"latency_ms"`
	TTFTMs          *float64 `json:"ttft_ms,omitempty"`
	TokensPerSecond *float64 `json:"tokens_per_second,omitempty"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	InputCostUSD     float64 `json:"input_cost_usd"`
	OutputCostUSD    float64 `json:"output_cost_usd"`

	// TokensEstimated marks completion token counts derived from content
	// length rather than the provider's usage block.
	TokensEstimated bool `json:"tokens_estimated,omitempty"`

	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	// RetryAfterSecs carries a provider rate-limit hint to the retry loop.
	// Not serialized.
	RetryAfterSecs int `json:"-"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// CostUSD returns the total accrued cost of the call, including prompt cost
// accrued by failed calls.
func (o CallOutcome) CostUSD() float64 {
	return o.InputCostUSD + o.OutputCostUSD
}

// JobPlan is what the executor is given.
type JobPlan struct {
	Targets       []ProviderTarget `json:"targets"`
	Tests         []TestCase       `json:"tests"`
	Config        ExecutionConfig  `json:"config"`
	PriorityOrder PriorityOrder    `json:"priority_order,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}

// AggregatedStats summarizes one (provider, model) group. Percentiles cover
// successful calls only; cost covers every outcome in the group.
type AggregatedStats struct {
	ProviderName ProviderName `json:"provider_name"`
	ModelID      string       `json:"model_id"`

	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`

	P50LatencyMs    float64 `json:"p50_latency_ms"`
	P95LatencyMs    float64 `json:"p95_latency_ms"`
	P99LatencyMs    float64 `json:"p99_latency_ms"`
	MeanLatencyMs   float64 `json:"mean_latency_ms"`
	MinLatencyMs    float64 `json:"min_latency_ms"`
	MaxLatencyMs    float64 `json:"max_latency_ms"`
	StdDevLatencyMs float64 `json:"stddev_latency_ms"`

	TotalTokens         int     `json:"total_tokens"`
	AvgTokensPerRequest float64 `json:"avg_tokens_per_request"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
	AvgCostPerRequest   float64 `json:"avg_cost_per_request_usd"`
	AvgTokensPerSecond  float64 `json:"avg_tokens_per_second"`
}

// JobReport is the executor's output: every outcome plus per-group stats.
type JobReport struct {
	CorrelationID string            `json:"correlation_id,omitempty"`
	Outcomes      []CallOutcome     `json:"outcomes"`
	Groups        []AggregatedStats `json:"groups"`
	Constraints   []Constraint      `json:"constraints_applied,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
}

// GroupFor returns the aggregated stats for a (provider, model) pair.
func (r *JobReport) GroupFor(provider ProviderName, model string) (AggregatedStats, bool) {
	for _, g := range r.Groups {
		if g.ProviderName == provider && g.ModelID == model {
			return g, true
		}
	}
	return AggregatedStats{}, false
}

// HasConstraint reports whether the job recorded the given constraint.
func (r *JobReport) HasConstraint(c Constraint) bool {
	for _, have := range r.Constraints {
		if have == c {
			return true
		}
	}
	return false
}
