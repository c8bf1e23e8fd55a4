package agents

import (
	"context"
	"encoding/json"
	"math"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/executor"
	"github.com/LLM-Dev-Ops/evalbench/internal/stats"
)

// BenchmarkAgent runs a job plan across its targets and reports latency,
// throughput, cost, and reliability per (provider, model) group.
type BenchmarkAgent struct {
	engine *executor.Engine
}

// NewBenchmarkAgent builds the benchmark agent over an executor.
func NewBenchmarkAgent(engine *executor.Engine) *BenchmarkAgent {
	return &BenchmarkAgent{engine: engine}
}

func (a *BenchmarkAgent) ID() string           { return "benchmark" }
func (a *BenchmarkAgent) Version() string      { return "1.0.0" }
func (a *BenchmarkAgent) DecisionType() string { return "benchmark_evaluation" }

func (a *BenchmarkAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var plan eval.JobPlan
	if err := decodeStrict(input, &plan); err != nil {
		return nil, err
	}

	report, err := a.engine.Run(ctx, &plan)
	if err != nil {
		return nil, err
	}

	confidence, factors := benchmarkConfidence(report)
	return &Result{
		Outputs:    map[string]any{"report": report},
		InputsFull: plan,
		InputsSummary: map[string]any{
			"targets":             len(plan.Targets),
			"tests":               len(plan.Tests),
			"iterations_per_test": plan.Config.IterationsPerTest,
			"concurrency":         plan.Config.Concurrency,
		},
		Confidence:  confidence,
		Factors:     factors,
		Constraints: constraintStrings(report.Constraints),
	}, nil
}

// benchmarkConfidence scores a report as
// 0.4*success_rate + 0.2*latency_consistency + 0.2*provider_reliability +
// 0.2*sample_size, where latency_consistency = 1 - min(1, stddev/mean),
// provider_reliability is the mean per-group success rate, and sample_size
// is log10(total+1)/2 capped at 1.
func benchmarkConfidence(report *eval.JobReport) (float64, []decision.ConfidenceFactor) {
	var total, succeeded int
	var latencies []float64
	for _, o := range report.Outcomes {
		total++
		if o.Success {
			succeeded++
			latencies = append(latencies, o.LatencyMs)
		}
	}

	successRate := 0.0
	if total > 0 {
		successRate = float64(succeeded) / float64(total)
	}

	latencyConsistency := 0.0
	if mean := stats.Mean(latencies); mean > 0 {
		latencyConsistency = 1 - math.Min(1, stats.StdDev(latencies)/mean)
	}

	reliability := 0.0
	if len(report.Groups) > 0 {
		for _, g := range report.Groups {
			reliability += g.SuccessRate
		}
		reliability /= float64(len(report.Groups))
	}

	sampleSize := math.Min(1, math.Log10(float64(total)+1)/2)

	factors := []decision.ConfidenceFactor{
		{Factor: "success_rate", Weight: 0.4, Value: successRate},
		{Factor: "latency_consistency", Weight: 0.2, Value: latencyConsistency},
		{Factor: "provider_reliability", Weight: 0.2, Value: reliability},
		{Factor: "sample_size", Weight: 0.2, Value: sampleSize},
	}
	score := clamp01(0.4*successRate + 0.2*latencyConsistency + 0.2*reliability + 0.2*sampleSize)
	return score, factors
}
