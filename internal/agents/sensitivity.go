package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/executor"
	"github.com/LLM-Dev-Ops/evalbench/internal/similarity"
	"github.com/LLM-Dev-Ops/evalbench/internal/stats"
)

// SensitivityAgent measures how much a model's output drifts when the prompt
// is perturbed: each variant is sampled several times and its variance is
// one minus the mean pairwise similarity of the samples.
type SensitivityAgent struct {
	engine *executor.Engine
}

// NewSensitivityAgent builds the prompt-sensitivity agent over an executor.
func NewSensitivityAgent(engine *executor.Engine) *SensitivityAgent {
	return &SensitivityAgent{engine: engine}
}

func (a *SensitivityAgent) ID() string           { return "prompt-sensitivity" }
func (a *SensitivityAgent) Version() string      { return "1.0.0" }
func (a *SensitivityAgent) DecisionType() string { return "sensitivity_evaluation" }

type sensitivityInput struct {
	Target           eval.ProviderTarget  `json:"target"`
	BasePrompt       string               `json:"base_prompt"`
	Perturbations    []string             `json:"perturbations"`
	SamplesPerPrompt int                  `json:"samples_per_prompt"`
	SimilarityMethod string               `json:"similarity_method,omitempty"`
	Temperature      float64              `json:"temperature,omitempty"`
	MaxTokens        *int                 `json:"max_tokens,omitempty"`
	Config           eval.ExecutionConfig `json:"config,omitempty"`
}

type perturbationVariance struct {
	TestID   string  `json:"test_id"`
	Prompt   string  `json:"-"`
	Samples  int     `json:"samples"`
	Variance float64 `json:"variance"`
}

func (a *SensitivityAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in sensitivityInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if err := in.Target.Validate("target"); err != nil {
		return nil, err
	}
	if in.BasePrompt == "" {
		return nil, eval.Invalid("base_prompt", "must not be empty")
	}
	if len(in.Perturbations) == 0 {
		return nil, eval.Invalid("perturbations", "at least one perturbation is required")
	}
	if in.SamplesPerPrompt < 2 {
		return nil, eval.Invalid("samples_per_prompt", "need at least 2 samples, got %d", in.SamplesPerPrompt)
	}
	method, err := similarity.ParseMethod(in.SimilarityMethod)
	if err != nil {
		return nil, eval.Invalid("similarity_method", "%s", err)
	}

	tests := make([]eval.TestCase, 0, len(in.Perturbations)+1)
	tests = append(tests, eval.TestCase{
		TestID: "base", Prompt: in.BasePrompt,
		Temperature: in.Temperature, MaxTokens: in.MaxTokens,
	})
	for i, p := range in.Perturbations {
		if p == "" {
			return nil, eval.Invalid(fmt.Sprintf("perturbations[%d]", i), "must not be empty")
		}
		tests = append(tests, eval.TestCase{
			TestID: fmt.Sprintf("perturbation-%d", i), Prompt: p,
			Temperature: in.Temperature, MaxTokens: in.MaxTokens,
		})
	}

	cfg := in.Config
	cfg.IterationsPerTest = in.SamplesPerPrompt
	cfg.SaveResponses = true
	plan := eval.JobPlan{
		Targets: []eval.ProviderTarget{in.Target},
		Tests:   tests,
		Config:  cfg,
	}

	report, err := a.engine.Run(ctx, &plan)
	if err != nil {
		return nil, err
	}

	byTest := make(map[string][]string)
	succeeded := 0
	for _, o := range report.Outcomes {
		if o.Success {
			succeeded++
			byTest[o.TestRef] = append(byTest[o.TestRef], o.Content)
		}
	}

	opts := similarity.DefaultOptions()
	variances := make([]perturbationVariance, 0, len(tests))
	var perturbOnly []float64
	for _, t := range tests {
		samples := byTest[t.TestID]
		v := perturbationVariance{TestID: t.TestID, Samples: len(samples)}
		if len(samples) >= 2 {
			v.Variance = clamp01(1 - similarity.MeanPairwise(samples, method, opts))
		}
		variances = append(variances, v)
		if t.TestID != "base" {
			perturbOnly = append(perturbOnly, v.Variance)
		}
	}
	overall := stats.Mean(perturbOnly)

	successRate := 0.0
	if len(report.Outcomes) > 0 {
		successRate = float64(succeeded) / float64(len(report.Outcomes))
	}
	sampleFactor := math.Min(1, float64(in.SamplesPerPrompt)/5)
	perturbFactor := math.Min(1, math.Log10(float64(len(in.Perturbations))+1)/2)

	factors := []decision.ConfidenceFactor{
		{Factor: "success_rate", Weight: 0.5, Value: successRate},
		{Factor: "samples_per_prompt", Weight: 0.25, Value: sampleFactor},
		{Factor: "perturbation_count", Weight: 0.25, Value: perturbFactor},
	}
	confidence := clamp01(0.5*successRate + 0.25*sampleFactor + 0.25*perturbFactor)

	return &Result{
		Outputs: map[string]any{
			"variances":         variances,
			"overall_variance":  overall,
			"similarity_method": string(method),
			"report_groups":     report.Groups,
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"target":             in.Target.Key(),
			"perturbations":      len(in.Perturbations),
			"samples_per_prompt": in.SamplesPerPrompt,
			"similarity_method":  string(method),
		},
		Confidence:  confidence,
		Factors:     factors,
		Constraints: constraintStrings(report.Constraints),
	}, nil
}
