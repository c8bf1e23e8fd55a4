package providers

import (
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/catalog"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// Completion is the dialect-independent result of a decoded provider
// response, handed to BuildOutcome by each adapter.
type Completion struct {
	Content      string
	FinishReason eval.FinishReason

	PromptTokens     int
	CompletionTokens int
	// TokensEstimated marks counts derived from content length because the
	// response carried no usage block.
	TokensEstimated bool

	// TTFTMs is set for streamed calls: wall time to the first content chunk.
	TTFTMs *float64
}

// BuildOutcome assembles a successful CallOutcome from a decoded completion,
// stamping latency, throughput, and cost from the catalog price.
func BuildOutcome(target eval.ProviderTarget, test eval.TestCase, started time.Time, c Completion, price catalog.Price) eval.CallOutcome {
	completed := time.Now().UTC()
	latencyMs := float64(completed.Sub(started)) / float64(time.Millisecond)

	inUSD, outUSD := price.Cost(c.PromptTokens, c.CompletionTokens)

	o := eval.CallOutcome{
		TargetRef:        target.Key(),
		TestRef:          test.TestID,
		Success:          true,
		Content:          c.Content,
		FinishReason:     c.FinishReason,
		LatencyMs:        latencyMs,
		TTFTMs:           c.TTFTMs,
		PromptTokens:     c.PromptTokens,
		CompletionTokens: c.CompletionTokens,
		TokensEstimated:  c.TokensEstimated,
		InputCostUSD:     inUSD,
		OutputCostUSD:    outUSD,
		StartedAt:        started.UTC(),
		CompletedAt:      completed,
	}
	if o.FinishReason == "" {
		o.FinishReason = eval.FinishStop
	}
	if latencyMs > 0 && c.CompletionTokens > 0 {
		tps := float64(c.CompletionTokens) / (latencyMs / 1000)
		o.TokensPerSecond = &tps
	}
	return o
}

// FailureOutcome assembles a failed CallOutcome from a transport or decode
// error, classifying it onto the standard error kinds. Failed calls that
// reached the provider still accrue prompt cost.
func FailureOutcome(target eval.ProviderTarget, test eval.TestCase, started time.Time, err error, promptTokens int, price catalog.Price) eval.CallOutcome {
	completed := time.Now().UTC()
	inUSD, _ := price.Cost(promptTokens, 0)
	return eval.CallOutcome{
		TargetRef:      target.Key(),
		TestRef:        test.TestID,
		Success:        false,
		FinishReason:   eval.FinishError,
		LatencyMs:      float64(completed.Sub(started)) / float64(time.Millisecond),
		PromptTokens:   promptTokens,
		InputCostUSD:   inUSD,
		ErrorKind:      Classify(err),
		ErrorMessage:   err.Error(),
		RetryAfterSecs: int(RetryAfterHint(err) / time.Second),
		StartedAt:      started.UTC(),
		CompletedAt:    completed,
	}
}
