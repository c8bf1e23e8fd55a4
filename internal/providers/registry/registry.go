// Package registry selects the wire adapter for a provider target. Adding a
// provider means one new dialect adapter plus an entry here.
package registry

import (
	"net/http"

	"github.com/LLM-Dev-Ops/evalbench/internal/catalog"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers/anthropic"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers/googleai"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers/openaicompat"
)

// Registry maps provider names to their dialect adapters. Immutable after
// construction; safe for concurrent use.
type Registry struct {
	openai    *openaicompat.Adapter
	anthropic *anthropic.Adapter
	google    *googleai.Adapter
}

// New builds a registry with one adapter per dialect, all sharing the given
// HTTP client, key resolver, and catalog.
func New(client *http.Client, keys *providers.KeyResolver, cat *catalog.Catalog) *Registry {
	return &Registry{
		openai:    openaicompat.New("openai-compatible", client, keys, cat),
		anthropic: anthropic.New("anthropic", client, keys, cat),
		google:    googleai.New("google", client, keys, cat),
	}
}

// For returns the adapter handling a target's provider. The OpenAI dialect
// covers openai, groq, together, perplexity, mistral, azure, and custom.
func (r *Registry) For(target eval.ProviderTarget) providers.Invoker {
	switch target.ProviderName {
	case eval.ProviderAnthropic:
		return r.anthropic
	case eval.ProviderGoogle:
		return r.google
	default:
		return r.openai
	}
}
