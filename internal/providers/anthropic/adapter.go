// Package anthropic implements the Anthropic messages dialect.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/catalog"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	// Anthropic requires max_tokens on every request.
	defaultMaxTokens = 4096
)

// Adapter implements providers.Invoker for Anthropic.
type Adapter struct {
	id      string
	client  *http.Client
	keys    *providers.KeyResolver
	catalog *catalog.Catalog
}

// New creates an Anthropic adapter.
func New(id string, client *http.Client, keys *providers.KeyResolver, cat *catalog.Catalog) *Adapter {
	return &Adapter{id: id, client: client, keys: keys, catalog: cat}
}

func (a *Adapter) ID() string { return a.id }

func (a *Adapter) Invoke(ctx context.Context, target eval.ProviderTarget, test eval.TestCase) eval.CallOutcome {
	started := time.Now()
	price, _ := a.catalog.Lookup(target.ProviderName, target.ModelID)
	promptEstimate := providers.EstimateTokens(test.Prompt)

	base := target.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	url := base + "/v1/messages"

	maxTokens := defaultMaxTokens
	if test.MaxTokens != nil {
		maxTokens = *test.MaxTokens
	}
	payload := map[string]any{
		"model":      target.ModelID,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": test.Prompt},
		},
	}
	if test.Temperature > 0 {
		payload["temperature"] = test.Temperature
	}
	if test.TopP > 0 {
		payload["top_p"] = test.TopP
	}
	if len(test.StopSequences) > 0 {
		payload["stop_sequences"] = test.StopSequences
	}

	headers := map[string]string{
		"x-api-key":         a.keys.Resolve(target.APIKeyRef),
		"anthropic-version": apiVersion,
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

	var (
		content      []byte
		stopReason   string
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
			stopReason = c.FinishReason
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
		FinishReason: mapStopReason(stopReason),
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

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func decodeResponse(body []byte) (providers.Completion, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.Completion{}, &providers.DecodeError{Reason: "malformed JSON: " + err.Error()}
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if len(resp.Content) == 0 {
		return providers.Completion{}, &providers.DecodeError{Reason: "missing content blocks"}
	}

	c := providers.Completion{
		Content:      text,
		FinishReason: mapStopReason(resp.StopReason),
	}
	if resp.Usage != nil {
		c.PromptTokens = resp.Usage.InputTokens
		c.CompletionTokens = resp.Usage.OutputTokens
	} else {
		c.PromptTokens = providers.EstimateTokens(text)
		c.CompletionTokens = providers.EstimateTokens(text)
		c.TokensEstimated = true
	}
	return c, nil
}

// streamEvent covers the SSE event payloads we care about:
// content_block_delta carries text, message_delta carries the stop reason
// and output token usage, message_stop ends the stream.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message *struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func decodeChunk(data []byte) (providers.StreamChunk, bool, error) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return providers.StreamChunk{}, false, &providers.DecodeError{Reason: "malformed stream event: " + err.Error()}
	}
	chunk := providers.StreamChunk{PromptTokens: -1, CompletionTokens: -1}
	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			chunk.PromptTokens = ev.Message.Usage.InputTokens
		}
	case "content_block_delta":
		chunk.Text = ev.Delta.Text
	case "message_delta":
		chunk.FinishReason = ev.Delta.StopReason
		if ev.Usage != nil {
			chunk.CompletionTokens = ev.Usage.OutputTokens
		}
	case "message_stop":
		return chunk, true, nil
	}
	return chunk, false, nil
}

func mapStopReason(sr string) eval.FinishReason {
	switch sr {
	case "end_turn", "stop_sequence", "":
		return eval.FinishStop
	case "max_tokens":
		return eval.FinishLength
	case "tool_use":
		return eval.FinishToolCalls
	default:
		return eval.FinishStop
	}
}
