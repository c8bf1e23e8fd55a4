package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/executor"
)

// Stress profile types with concrete generation rules. Anything else is
// rejected at validation.
const (
	stressBurst            = "burst"
	stressSustained        = "sustained"
	stressRampUp           = "ramp_up"
	stressLargePrompt      = "large_prompt"
	stressConcurrencySweep = "concurrency_sweep"
)

// StressAgent drives a target through a load profile and reports how its
// latency tail and error rate degrade under pressure.
type StressAgent struct {
	engine *executor.Engine
}

// NewStressAgent builds the stress-test agent over an executor.
func NewStressAgent(engine *executor.Engine) *StressAgent {
	return &StressAgent{engine: engine}
}

func (a *StressAgent) ID() string           { return "stress-test" }
func (a *StressAgent) Version() string      { return "1.0.0" }
func (a *StressAgent) DecisionType() string { return "stress_test" }

type stressInput struct {
	Target      eval.ProviderTarget `json:"target"`
	ProfileType string              `json:"profile_type"`
	Prompt      string              `json:"prompt,omitempty"`
	Requests    int                 `json:"requests,omitempty"`
	Concurrency int                 `json:"concurrency,omitempty"`
	// PromptSizeChars controls the large_prompt profile.
	PromptSizeChars int `json:"prompt_size_chars,omitempty"`
	// SweepSteps controls concurrency_sweep: concurrency doubles per step.
	SweepSteps int `json:"sweep_steps,omitempty"`
	// DelayMs spaces sustained-profile requests.
	DelayMs int `json:"delay_ms,omitempty"`
}

type stressPhase struct {
	Phase       string               `json:"phase"`
	Concurrency int                  `json:"concurrency"`
	Group       eval.AggregatedStats `json:"group"`
	ErrorRate   float64              `json:"error_rate"`
	TailRatio   float64              `json:"tail_ratio"` // p99 / p50
}

func (a *StressAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in stressInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if err := in.Target.Validate("target"); err != nil {
		return nil, err
	}
	if in.Requests <= 0 {
		in.Requests = 20
	}
	if in.Concurrency <= 0 {
		in.Concurrency = 4
	}
	prompt := in.Prompt
	if prompt == "" {
		prompt = "Respond with a short acknowledgement."
	}

	var phases []stressPhase
	var allConstraints []eval.Constraint
	var runErr error
	switch in.ProfileType {
	case stressBurst:
		// Everything at once: concurrency equals the request count.
		phases, allConstraints, runErr = a.runPhases(ctx, in.Target, []phaseSpec{
			{name: "burst", prompt: prompt, requests: in.Requests, concurrency: in.Requests},
		})
	case stressSustained:
		delay := in.DelayMs
		if delay <= 0 {
			delay = 250
		}
		phases, allConstraints, runErr = a.runPhases(ctx, in.Target, []phaseSpec{
			{name: "sustained", prompt: prompt, requests: in.Requests, concurrency: in.Concurrency, delayMs: delay},
		})
	case stressRampUp:
		// Three equal phases at 1x, 2x, 4x the base concurrency.
		per := maxInt(1, in.Requests/3)
		phases, allConstraints, runErr = a.runPhases(ctx, in.Target, []phaseSpec{
			{name: "ramp-1", prompt: prompt, requests: per, concurrency: in.Concurrency},
			{name: "ramp-2", prompt: prompt, requests: per, concurrency: in.Concurrency * 2},
			{name: "ramp-3", prompt: prompt, requests: per, concurrency: in.Concurrency * 4},
		})
	case stressLargePrompt:
		size := in.PromptSizeChars
		if size <= 0 {
			size = 50000
		}
		large := strings.Repeat("The quick brown fox jumps over the lazy dog. ", size/45+1)[:size]
		phases, allConstraints, runErr = a.runPhases(ctx, in.Target, []phaseSpec{
			{name: "large-prompt", prompt: large, requests: in.Requests, concurrency: in.Concurrency},
		})
	case stressConcurrencySweep:
		steps := in.SweepSteps
		if steps <= 0 {
			steps = 3
		}
		specs := make([]phaseSpec, 0, steps)
		c := in.Concurrency
		for i := 0; i < steps; i++ {
			specs = append(specs, phaseSpec{
				name:        fmt.Sprintf("sweep-%dx", c),
				prompt:      prompt,
				requests:    in.Requests,
				concurrency: c,
			})
			c *= 2
		}
		phases, allConstraints, runErr = a.runPhases(ctx, in.Target, specs)
	case "":
		return nil, eval.Invalid("profile_type", "must not be empty")
	default:
		return nil, eval.Invalid("profile_type", "no generation rule for profile %q", in.ProfileType)
	}
	if runErr != nil {
		return nil, runErr
	}

	var worstTail, worstErrorRate float64
	for _, p := range phases {
		if p.TailRatio > worstTail {
			worstTail = p.TailRatio
		}
		if p.ErrorRate > worstErrorRate {
			worstErrorRate = p.ErrorRate
		}
	}

	totalRequests := 0
	for _, p := range phases {
		totalRequests += p.Group.Total
	}
	sampleFactor := math.Min(1, math.Log10(float64(totalRequests)+1)/2)
	stability := 1 - worstErrorRate

	factors := []decision.ConfidenceFactor{
		{Factor: "stability", Weight: 0.5, Value: stability},
		{Factor: "sample_size", Weight: 0.3, Value: sampleFactor},
		{Factor: "phase_coverage", Weight: 0.2, Value: math.Min(1, float64(len(phases))/3)},
	}
	confidence := clamp01(0.5*stability + 0.3*sampleFactor + 0.2*math.Min(1, float64(len(phases))/3))

	return &Result{
		Outputs: map[string]any{
			"profile_type":     in.ProfileType,
			"phases":           phases,
			"worst_tail_ratio": worstTail,
			"worst_error_rate": worstErrorRate,
			"degraded":         worstErrorRate > 0.1 || worstTail > 5,
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"target":       in.Target.Key(),
			"profile_type": in.ProfileType,
			"requests":     in.Requests,
		},
		Confidence:  confidence,
		Factors:     factors,
		Constraints: constraintStrings(allConstraints),
	}, nil
}

type phaseSpec struct {
	name        string
	prompt      string
	requests    int
	concurrency int
	delayMs     int
}

// runPhases executes each phase as its own plan so concurrency can differ
// between phases.
func (a *StressAgent) runPhases(ctx context.Context, target eval.ProviderTarget, specs []phaseSpec) ([]stressPhase, []eval.Constraint, error) {
	var phases []stressPhase
	seen := map[eval.Constraint]struct{}{}
	var constraints []eval.Constraint
	for _, spec := range specs {
		cfg := eval.ExecutionConfig{
			Concurrency:       spec.concurrency,
			IterationsPerTest: spec.requests,
			SaveResponses:     false,
		}
		if spec.delayMs > 0 {
			d := spec.delayMs
			cfg.RequestDelayMs = &d
		}
		plan := eval.JobPlan{
			Targets: []eval.ProviderTarget{target},
			Tests:   []eval.TestCase{{TestID: spec.name, Prompt: spec.prompt}},
			Config:  cfg,
		}
		report, err := a.engine.Run(ctx, &plan)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range report.Constraints {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				constraints = append(constraints, c)
			}
		}
		for _, g := range report.Groups {
			p := stressPhase{
				Phase:       spec.name,
				Concurrency: spec.concurrency,
				Group:       g,
			}
			if g.Total > 0 {
				p.ErrorRate = float64(g.Failed) / float64(g.Total)
			}
			if g.P50LatencyMs > 0 {
				p.TailRatio = g.P99LatencyMs / g.P50LatencyMs
			}
			phases = append(phases, p)
		}
	}
	return phases, constraints, nil
}
