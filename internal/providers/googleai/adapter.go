// Package googleai implements the Google generateContent dialect.
package googleai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/catalog"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Adapter implements providers.Invoker for Google. Calls are non-streaming:
// generateContent returns the full candidate in one response, so ttft_ms is
// not stamped for this dialect.
type Adapter struct {
	id      string
	client  *http.Client
	keys    *providers.KeyResolver
	catalog *catalog.Catalog
}

// New creates a Google adapter.
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
	// The key travels as a query parameter in this dialect; it is never
	// logged because request URLs are not recorded by the redacting logger.
	endpoint := base + "/v1beta/models/" + url.PathEscape(target.ModelID) + ":generateContent?key=" +
		url.QueryEscape(a.keys.Resolve(target.APIKeyRef))

	generationConfig := map[string]any{}
	if test.MaxTokens != nil {
		generationConfig["maxOutputTokens"] = *test.MaxTokens
	}
	if test.Temperature > 0 {
		generationConfig["temperature"] = test.Temperature
	}
	if test.TopP > 0 {
		generationConfig["topP"] = test.TopP
	}
	if len(test.StopSequences) > 0 {
		generationConfig["stopSequences"] = test.StopSequences
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": test.Prompt}},
			},
		},
	}
	if len(generationConfig) > 0 {
		payload["generationConfig"] = generationConfig
	}

	callCtx, cancel := providers.CallDeadline(ctx, target.TimeoutMs)
	defer cancel()

	body, err := providers.DoJSON(callCtx, a.client, endpoint, payload, nil)
	if err != nil {
		return providers.FailureOutcome(target, test, started, err, promptEstimate, price)
	}
	completion, err := decodeResponse(body)
	if err != nil {
		return providers.FailureOutcome(target, test, started, err, promptEstimate, price)
	}
	return providers.BuildOutcome(target, test, started, completion, price)
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func decodeResponse(body []byte) (providers.Completion, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.Completion{}, &providers.DecodeError{Reason: "malformed JSON: " + err.Error()}
	}
	if len(resp.Candidates) == 0 {
		return providers.Completion{}, &providers.DecodeError{Reason: "missing candidates"}
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		// Provider-signaled safety block: surface as content_filtered.
		return providers.Completion{}, &providers.StatusError{StatusCode: 400, Body: "blocked by safety settings"}
	}

	var text string
	for _, p := range cand.Content.Parts {
		text += p.Text
	}
	if text == "" && cand.FinishReason != "MAX_TOKENS" {
		return providers.Completion{}, &providers.DecodeError{Reason: "empty candidate content"}
	}

	c := providers.Completion{
		Content:      text,
		FinishReason: mapFinishReason(cand.FinishReason),
	}
	if resp.UsageMetadata != nil {
		c.PromptTokens = resp.UsageMetadata.PromptTokenCount
		c.CompletionTokens = resp.UsageMetadata.CandidatesTokenCount
	} else {
		c.PromptTokens = providers.EstimateTokens(text)
		c.CompletionTokens = providers.EstimateTokens(text)
		c.TokensEstimated = true
	}
	return c, nil
}

func mapFinishReason(fr string) eval.FinishReason {
	switch fr {
	case "STOP", "":
		return eval.FinishStop
	case "MAX_TOKENS":
		return eval.FinishLength
	case "SAFETY", "RECITATION":
		return eval.FinishContentFilter
	default:
		return eval.FinishStop
	}
}
