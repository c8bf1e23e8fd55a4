package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/similarity"
	"github.com/LLM-Dev-Ops/evalbench/internal/stats"
)

const defaultConsistencyThreshold = 0.85

// ConsistencyAgent scores groups of outputs for the same prompt: the group's
// consistency is the mean of each output's best agreement with any other
// output under the selected method.
type ConsistencyAgent struct{}

// NewConsistencyAgent builds the output-consistency agent.
func NewConsistencyAgent() *ConsistencyAgent { return &ConsistencyAgent{} }

func (a *ConsistencyAgent) ID() string           { return "output-consistency" }
func (a *ConsistencyAgent) Version() string      { return "1.0.0" }
func (a *ConsistencyAgent) DecisionType() string { return "consistency_evaluation" }

type consistencyInput struct {
	Groups []struct {
		GroupID string   `json:"group_id,omitempty"`
		Outputs []string `json:"outputs"`
	} `json:"groups"`
	SimilarityMethod string   `json:"similarity_method,omitempty"`
	Threshold        *float64 `json:"threshold,omitempty"`
	CaseSensitive    bool     `json:"case_sensitive,omitempty"`
	TrimWhitespace   *bool    `json:"trim_whitespace,omitempty"`
}

type groupConsistency struct {
	GroupID          string  `json:"group_id"`
	Outputs          int     `json:"outputs"`
	ConsistencyScore float64 `json:"consistency_score"`
	IsConsistent     bool    `json:"is_consistent"`
}

func (a *ConsistencyAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in consistencyInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if len(in.Groups) == 0 {
		return nil, eval.Invalid("groups", "at least one group is required")
	}
	method, err := similarity.ParseMethod(in.SimilarityMethod)
	if err != nil {
		return nil, eval.Invalid("similarity_method", "%s", err)
	}
	threshold := defaultConsistencyThreshold
	if in.Threshold != nil {
		if *in.Threshold < 0 || *in.Threshold > 1 {
			return nil, eval.Invalid("threshold", "must be in [0,1], got %g", *in.Threshold)
		}
		threshold = *in.Threshold
	}
	opts := similarity.Options{CaseSensitive: in.CaseSensitive, TrimWhitespace: true}
	if in.TrimWhitespace != nil {
		opts.TrimWhitespace = *in.TrimWhitespace
	}

	groups := make([]groupConsistency, 0, len(in.Groups))
	var scores []float64
	var outputCounts []float64
	consistent := 0
	for i, g := range in.Groups {
		if len(g.Outputs) < 2 {
			return nil, eval.Invalid(fmt.Sprintf("groups[%d].outputs", i), "need at least 2 outputs, got %d", len(g.Outputs))
		}
		id := g.GroupID
		if id == "" {
			id = fmt.Sprintf("group-%d", i)
		}
		score := similarity.Consensus(g.Outputs, method, opts)
		ok := score >= threshold
		if ok {
			consistent++
		}
		groups = append(groups, groupConsistency{
			GroupID:          id,
			Outputs:          len(g.Outputs),
			ConsistencyScore: score,
			IsConsistent:     ok,
		})
		scores = append(scores, score)
		outputCounts = append(outputCounts, float64(len(g.Outputs)))
	}

	// Margin measures how far scores sit from the threshold; borderline
	// groups lower it.
	margin := 0.0
	for _, s := range scores {
		margin += math.Abs(s - threshold)
	}
	margin = clamp01(margin / float64(len(scores)) / math.Max(threshold, 1-threshold))
	groupFactor := math.Min(1, math.Log10(float64(len(groups))+1)/2)
	sampleFactor := math.Min(1, stats.Mean(outputCounts)/5)

	factors := []decision.ConfidenceFactor{
		{Factor: "score_margin", Weight: 0.4, Value: margin},
		{Factor: "group_count", Weight: 0.3, Value: groupFactor},
		{Factor: "outputs_per_group", Weight: 0.3, Value: sampleFactor},
	}
	confidence := clamp01(0.4*margin + 0.3*groupFactor + 0.3*sampleFactor)

	return &Result{
		Outputs: map[string]any{
			"groups":             groups,
			"mean_score":         stats.Mean(scores),
			"consistent_groups":  consistent,
			"total_groups":       len(groups),
			"threshold":          threshold,
			"similarity_method":  string(method),
			"overall_consistent": consistent == len(groups),
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"groups":            len(in.Groups),
			"similarity_method": string(method),
			"threshold":         threshold,
		},
		Confidence: confidence,
		Factors:    factors,
	}, nil
}
