// Package openaicompat implements the OpenAI chat-completions dialect shared
// by openai, groq, together, perplexity, mistral, azure, and custom targets.
package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/catalog"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers"
)

// defaultBaseURLs maps provider names to their public endpoints. azure and
// custom targets must carry an explicit base_url.
var defaultBaseURLs = map[eval.ProviderName]string{
	eval.ProviderOpenAI:     "https://api.openai.com",
	eval.ProviderGroq:       "https://api.groq.com/openai",
	eval.ProviderTogether:   "https://api.together.xyz",
	eval.ProviderPerplexity: "https://api.perplexity.ai",
	eval.ProviderMistral:    "https://api.mistral.ai",
}

// Adapter implements providers.Invoker for the OpenAI-compatible dialect.
type Adapter struct {
	id      string
	client  *http.Client
	keys    *providers.KeyResolver
	catalog *catalog.Catalog
}

// New creates an OpenAI-compatible adapter.
func New(id string, client *http.Client, keys *providers.KeyResolver, cat *catalog.Catalog) *Adapter {
	return &Adapter{id: id, client: client, keys: keys, catalog: cat}
}

func (a *Adapter) ID() string { return a.id }

// BaseURL resolves the endpoint root for a target.
func BaseURL(target eval.ProviderTarget) string {
	if target.BaseURL != "" {
		return target.BaseURL
	}
	return defaultBaseURLs[target.ProviderName]
}

func (a *Adapter) Invoke(ctx context.Context, target eval.ProviderTarget, test eval.TestCase) eval.CallOutcome {
	started := time.Now()
	price, _ := a.catalog.Lookup(target.ProviderName, target.ModelID)
	promptEstimate := providers.EstimateTokens(test.Prompt)

	base := BaseURL(target)
	if base == "" {
		err := &providers.DecodeError{Reason: "no base_url configured for provider " + string(target.ProviderName)}
		return providers.FailureOutcome(target, test, started, err, promptEstimate, price)
	}
	url := base + "/v1/chat/completions"

	payload := map[string]any{
		"model": target.ModelID,
		"messages": []map[string]string{
			{"role": "user", "content": test.Prompt},
		},
	}
	if test.MaxTokens != nil {
		payload["max_tokens"] = *test.MaxTokens
	}
	if test.Temperature > 0 {
		payload["temperature"] = test.Temperature
	}
	if test.TopP > 0 {
		payload["top_p"] = test.TopP
	}
	if len(test.StopSequences) > 0 {
		payload["stop"] = test.StopSequences
	}

	headers := map[string]string{
		"Authorization": "Bearer " + a.keys.Resolve(target.APIKeyRef),
	}

	callCtx, cancel := providers.CallDeadline(ctx, target.TimeoutMs)
	defer cancel()

	if price.SupportsStreaming {
		return a.invokeStream(callCtx, target, test, started, url, payload, headers, price, promptEstimate)
	}

	body, err := providers.DoJSON(callCtx, a.client, url, payload, headers)
	if err != nil {
		return providers.FailureOutcome(target, test, started, err, promptEstimate, price)
	}

	completion, err := decodeResponse(body)
	if err != nil {
		return providers.FailureOutcome(target, test, started, err, promptEstimate, price)
	}
	return providers.BuildOutcome(target, test, started, completion, price)
}

func (a *Adapter) invokeStream(ctx context.Context, target eval.ProviderTarget, test eval.TestCase, started time.Time, url string, payload map[string]any, headers map[string]string, price catalog.Price, promptEstimate int) eval.CallOutcome {
	payload["stream"] = true
	payload["stream_options"] = map[string]any{"include_usage": true}

	var (
		content      []byte
		finish       string
		ttftMs       *float64
		promptTokens = -1
		outputTokens = -1
	)

	err := providers.DoStream(ctx, a.client, url, payload, headers, decodeChunk, func(c providers.StreamChunk) {
		if c.Text != "" && ttftMs == nil {
			ms := float64(time.Since(started)) / float64(time.Millisecond)
			ttftMs = &ms
		}
		content = append(content, c.Text...)
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
		if c.PromptTokens >= 0 {
			promptTokens = c.PromptTokens
		}
		if c.CompletionTokens >= 0 {
			outputTokens = c.CompletionTokens
		}
	})
	if err != nil {
		return providers.FailureOutcome(target, test, started, err, promptEstimate, price)
	}

	completion := providers.Completion{
		Content:      string(content),
		FinishReason: mapFinishReason(finish),
		TTFTMs:       ttftMs,
	}
	if promptTokens >= 0 {
		completion.PromptTokens = promptTokens
	} else {
		completion.PromptTokens = promptEstimate
		completion.TokensEstimated = true
	}
	if outputTokens >= 0 {
		completion.CompletionTokens = outputTokens
	} else {
		completion.CompletionTokens = providers.EstimateTokens(string(content))
		completion.TokensEstimated = true
	}
	return providers.BuildOutcome(target, test, started, completion, price)
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func decodeResponse(body []byte) (providers.Completion, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.Completion{}, &providers.DecodeError{Reason: "malformed JSON: " + err.Error()}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return providers.Completion{}, &providers.DecodeError{Reason: "missing choices[0].message.content"}
	}

	c := providers.Completion{
		Content:      *resp.Choices[0].Message.Content,
		FinishReason: mapFinishReason(resp.Choices[0].FinishReason),
	}
	if resp.Usage != nil {
		c.PromptTokens = resp.Usage.PromptTokens
		c.CompletionTokens = resp.Usage.CompletionTokens
	} else {
		c.PromptTokens = providers.EstimateTokens(c.Content)
		c.CompletionTokens = providers.EstimateTokens(c.Content)
		c.TokensEstimated = true
	}
	return c, nil
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func decodeChunk(data []byte) (providers.StreamChunk, bool, error) {
	var cc chatChunk
	if err := json.Unmarshal(data, &cc); err != nil {
		return providers.StreamChunk{}, false, &providers.DecodeError{Reason: "malformed stream chunk: " + err.Error()}
	}
	chunk := providers.StreamChunk{PromptTokens: -1, CompletionTokens: -1}
	if len(cc.Choices) > 0 {
		chunk.Text = cc.Choices[0].Delta.Content
		if fr := cc.Choices[0].FinishReason; fr != nil {
			chunk.FinishReason = *fr
		}
	}
	if cc.Usage != nil {
		chunk.PromptTokens = cc.Usage.PromptTokens
		chunk.CompletionTokens = cc.Usage.CompletionTokens
	}
	return chunk, false, nil
}

func mapFinishReason(fr string) eval.FinishReason {
	switch fr {
	case "stop", "":
		return eval.FinishStop
	case "length":
		return eval.FinishLength
	case "content_filter":
		return eval.FinishContentFilter
	case "tool_calls", "function_call":
		return eval.FinishToolCalls
	default:
		return eval.FinishStop
	}
}
