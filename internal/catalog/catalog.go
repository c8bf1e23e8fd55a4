// Package catalog holds the static pricing and capability table for known
// (provider, model) pairs. The catalog is loaded once at startup and never
// mutated afterwards; unknown models price at zero and degrade decision
// confidence instead of failing the call.
package catalog

import (
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// Price describes per-model pricing and capability limits.
type Price struct {
	InputUSDPer1K     float64
	OutputUSDPer1K    float64
	ContextWindow     int // 0 = unknown
	SupportsStreaming bool
	SupportsVision    bool
}

type key struct {
	provider eval.ProviderName
	model    string
}

// Catalog is an immutable (provider, model) -> Price mapping.
type Catalog struct {
	entries map[key]Price
}

// Default returns the built-in catalog. Prices are USD per 1K tokens.
func Default() *Catalog {
	c := &Catalog{entries: make(map[key]Price)}
	add := func(p eval.ProviderName, model string, in, out float64, ctx int, stream, vision bool) {
		c.entries[key{p, model}] = Price{
			InputUSDPer1K:     in,
			OutputUSDPer1K:    out,
			ContextWindow:     ctx,
			SupportsStreaming: stream,
			SupportsVision:    vision,
		}
	}

	add(eval.ProviderOpenAI, "gpt-4o", 0.0025, 0.01, 128000, true, true)
	add(eval.ProviderOpenAI, "gpt-4o-mini", 0.00015, 0.0006, 128000, true, true)
	add(eval.ProviderOpenAI, "gpt-4-turbo", 0.01, 0.03, 128000, true, true)
	add(eval.ProviderOpenAI, "gpt-3.5-turbo", 0.0005, 0.0015, 16385, true, false)
	add(eval.ProviderOpenAI, "o1-mini", 0.003, 0.012, 128000, true, false)

	add(eval.ProviderAnthropic, "claude-3-opus-20240229", 0.015, 0.075, 200000, true, true)
	add(eval.ProviderAnthropic, "claude-3-5-sonnet-20241022", 0.003, 0.015, 200000, true, true)
	add(eval.ProviderAnthropic, "claude-3-5-haiku-20241022", 0.0008, 0.004, 200000, true, false)

	add(eval.ProviderGoogle, "gemini-1.5-pro", 0.00125, 0.005, 2000000, true, true)
	add(eval.ProviderGoogle, "gemini-1.5-flash", 0.000075, 0.0003, 1000000, true, true)

	add(eval.ProviderMistral, "mistral-large-latest", 0.002, 0.006, 128000, true, false)
	add(eval.ProviderMistral, "mistral-small-latest", 0.0002, 0.0006, 32000, true, false)

	add(eval.ProviderGroq, "llama-3.3-70b-versatile", 0.00059, 0.00079, 128000, true, false)
	add(eval.ProviderGroq, "llama-3.1-8b-instant", 0.00005, 0.00008, 128000, true, false)

	add(eval.ProviderTogether, "meta-llama/Llama-3.3-70B-Instruct-Turbo", 0.00088, 0.00088, 131072, true, false)
	add(eval.ProviderPerplexity, "sonar", 0.001, 0.001, 127072, true, false)
	add(eval.ProviderPerplexity, "sonar-pro", 0.003, 0.015, 200000, true, false)

	return c
}

// Lookup returns the price entry for a (provider, model) pair. Unknown pairs
// return the zero Price and ok=false; the caller records the call at zero
// cost and surfaces a low-confidence constraint on the decision.
func (c *Catalog) Lookup(provider eval.ProviderName, model string) (Price, bool) {
	p, ok := c.entries[key{provider, model}]
	return p, ok
}

// Cost computes the USD cost of a call against a price entry.
func (p Price) Cost(promptTokens, completionTokens int) (inputUSD, outputUSD float64) {
	inputUSD = float64(promptTokens) / 1000 * p.InputUSDPer1K
	outputUSD = float64(completionTokens) / 1000 * p.OutputUSDPer1K
	return inputUSD, outputUSD
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int { return len(c.entries) }
