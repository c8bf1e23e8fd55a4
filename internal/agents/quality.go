package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/similarity"
	"github.com/LLM-Dev-Ops/evalbench/internal/stats"
)

// qualityWeights is the default criteria scoring table.
var qualityWeights = map[string]float64{
	"relevance":    0.4,
	"completeness": 0.25,
	"coherence":    0.2,
	"diversity":    0.15,
}

const defaultQualityPassScore = 0.6

// QualityAgent scores responses against heuristic criteria: relevance to
// the prompt, completeness of length, structural coherence, and lexical
// diversity.
type QualityAgent struct{}

// NewQualityAgent builds the quality-scoring agent.
func NewQualityAgent() *QualityAgent { return &QualityAgent{} }

func (a *QualityAgent) ID() string           { return "quality-scoring" }
func (a *QualityAgent) Version() string      { return "1.0.0" }
func (a *QualityAgent) DecisionType() string { return "quality_scoring" }

type qualityInput struct {
	Responses []struct {
		ResponseID string `json:"response_id,omitempty"`
		Prompt     string `json:"prompt"`
		Output     string `json:"output"`
	} `json:"responses"`
	Weights      map[string]float64 `json:"weights,omitempty"`
	MinLength    int                `json:"min_length,omitempty"`
	TargetLength int                `json:"target_length,omitempty"`
	PassScore    *float64           `json:"pass_score,omitempty"`
}

type qualityScore struct {
	ResponseID string             `json:"response_id"`
	Criteria   map[string]float64 `json:"criteria"`
	Score      float64            `json:"score"`
	Passed     bool               `json:"passed"`
}

func (a *QualityAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in qualityInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if len(in.Responses) == 0 {
		return nil, eval.Invalid("responses", "at least one response is required")
	}
	weights := qualityWeights
	if len(in.Weights) > 0 {
		var sum float64
		for k, w := range in.Weights {
			if _, ok := qualityWeights[k]; !ok {
				return nil, eval.Invalid("weights", "unknown criterion %q", k)
			}
			if w < 0 {
				return nil, eval.Invalid("weights", "weight for %q must be >= 0", k)
			}
			sum += w
		}
		if math.Abs(sum-1) > 1e-9 {
			return nil, eval.Invalid("weights", "weights must sum to 1, got %g", sum)
		}
		weights = in.Weights
	}
	passScore := defaultQualityPassScore
	if in.PassScore != nil {
		if *in.PassScore <= 0 || *in.PassScore > 1 {
			return nil, eval.Invalid("pass_score", "must be in (0,1], got %g", *in.PassScore)
		}
		passScore = *in.PassScore
	}
	targetLength := in.TargetLength
	if targetLength <= 0 {
		targetLength = 200
	}

	opts := similarity.DefaultOptions()
	results := make([]qualityScore, 0, len(in.Responses))
	var scores []float64
	passed := 0
	for i, r := range in.Responses {
		if r.Prompt == "" {
			return nil, eval.Invalid(fmt.Sprintf("responses[%d].prompt", i), "must not be empty")
		}
		id := r.ResponseID
		if id == "" {
			id = fmt.Sprintf("response-%d", i)
		}
		criteria := map[string]float64{
			"relevance":    similarity.KeywordOverlap(r.Prompt, r.Output, opts),
			"completeness": completenessScore(r.Output, in.MinLength, targetLength),
			"coherence":    coherenceScore(r.Output),
			"diversity":    diversityScore(r.Output, opts),
		}
		var score float64
		for k, w := range weights {
			score += w * criteria[k]
		}
		score = clamp01(score)
		ok := score >= passScore
		if ok {
			passed++
		}
		results = append(results, qualityScore{ResponseID: id, Criteria: criteria, Score: score, Passed: ok})
		scores = append(scores, score)
	}

	passRate := float64(passed) / float64(len(results))
	sampleFactor := math.Min(1, math.Log10(float64(len(results))+1)/2)
	margin := 0.0
	for _, s := range scores {
		margin += math.Abs(s - passScore)
	}
	margin = clamp01(margin / float64(len(scores)) / math.Max(passScore, 1-passScore))

	factors := []decision.ConfidenceFactor{
		{Factor: "score_margin", Weight: 0.5, Value: margin},
		{Factor: "sample_size", Weight: 0.5, Value: sampleFactor},
	}
	confidence := clamp01(0.5*margin + 0.5*sampleFactor)

	return &Result{
		Outputs: map[string]any{
			"scores":     results,
			"mean_score": stats.Mean(scores),
			"pass_rate":  passRate,
			"pass_score": passScore,
			"weights":    weights,
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"responses":  len(in.Responses),
			"pass_score": passScore,
		},
		Confidence: confidence,
		Factors:    factors,
	}, nil
}

// completenessScore rewards outputs near the target length and penalizes
// truncation below the minimum.
func completenessScore(output string, minLength, targetLength int) float64 {
	n := len(strings.TrimSpace(output))
	if n == 0 {
		return 0
	}
	if minLength > 0 && n < minLength {
		return float64(n) / float64(minLength) * 0.5
	}
	if n >= targetLength {
		return 1
	}
	return 0.5 + 0.5*float64(n)/float64(targetLength)
}

// coherenceScore is a structural heuristic: sentences of reasonable length
// that end with terminal punctuation.
func coherenceScore(output string) float64 {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return 0
	}
	score := 0.5
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") ||
		strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "```") {
		score += 0.25
	}
	words := len(strings.Fields(trimmed))
	sentences := len(splitSentences(trimmed))
	if sentences > 0 {
		avg := float64(words) / float64(sentences)
		if avg >= 5 && avg <= 40 {
			score += 0.25
		}
	}
	return clamp01(score)
}

// diversityScore is the type-token ratio over word tokens.
func diversityScore(output string, opts similarity.Options) float64 {
	tokens := similarity.Tokens(output, opts)
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	return float64(len(unique)) / float64(len(tokens))
}
