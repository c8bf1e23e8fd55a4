package agents

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/executor"
	"github.com/LLM-Dev-Ops/evalbench/internal/stats"
)

// comparatorWeights is the default composite scoring table.
var comparatorWeights = map[string]float64{
	"success_rate": 0.4,
	"latency":      0.3,
	"cost":         0.2,
	"throughput":   0.1,
}

// ComparatorAgent benchmarks two or more targets on the same tests and ranks
// them by a weighted composite of reliability, latency, cost, and
// throughput. The top two are additionally compared with a Mann-Whitney U
// test on their latency samples.
type ComparatorAgent struct {
	engine *executor.Engine
}

// NewComparatorAgent builds the model comparator over an executor.
func NewComparatorAgent(engine *executor.Engine) *ComparatorAgent {
	return &ComparatorAgent{engine: engine}
}

func (a *ComparatorAgent) ID() string           { return "model-comparator" }
func (a *ComparatorAgent) Version() string      { return "1.0.0" }
func (a *ComparatorAgent) DecisionType() string { return "model_comparison" }

type comparatorInput struct {
	Targets       []eval.ProviderTarget `json:"targets"`
	Tests         []eval.TestCase       `json:"tests"`
	Config        eval.ExecutionConfig  `json:"config,omitempty"`
	Weights       map[string]float64    `json:"weights,omitempty"`
	CorrelationID string                `json:"correlation_id,omitempty"`
}

type modelRanking struct {
	Rank           int     `json:"rank"`
	TargetRef      string  `json:"target_ref"`
	CompositeScore float64 `json:"composite_score"`
	SuccessRate    float64 `json:"success_rate"`
	MeanLatencyMs  float64 `json:"mean_latency_ms"`
	AvgCostUSD     float64 `json:"avg_cost_usd"`
	TokensPerSec   float64 `json:"tokens_per_second"`
}

func (a *ComparatorAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in comparatorInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if len(in.Targets) < 2 {
		return nil, eval.Invalid("targets", "need at least 2 targets to compare, got %d", len(in.Targets))
	}
	weights := comparatorWeights
	if len(in.Weights) > 0 {
		var sum float64
		for k, w := range in.Weights {
			if _, ok := comparatorWeights[k]; !ok {
				return nil, eval.Invalid("weights", "unknown metric %q", k)
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

	plan := eval.JobPlan{
		Targets:       in.Targets,
		Tests:         in.Tests,
		Config:        in.Config,
		PriorityOrder: eval.Interleaved,
		CorrelationID: in.CorrelationID,
	}
	report, err := a.engine.Run(ctx, &plan)
	if err != nil {
		return nil, err
	}

	rankings := rankGroups(report.Groups, weights)
	outputs := map[string]any{
		"rankings": rankings,
		"weights":  weights,
		"groups":   report.Groups,
	}
	if len(rankings) >= 1 {
		outputs["winner"] = rankings[0].TargetRef
	}

	// Separation between first and second place drives how decisive the
	// comparison is.
	separation := 0.0
	if len(rankings) >= 2 {
		separation = clamp01((rankings[0].CompositeScore - rankings[1].CompositeScore) / 0.25)
		u := stats.MannWhitneyU(
			latenciesFor(report.Outcomes, rankings[0].TargetRef),
			latenciesFor(report.Outcomes, rankings[1].TargetRef),
		)
		outputs["top_two_latency_utest"] = u
	}

	var successRates []float64
	for _, g := range report.Groups {
		successRates = append(successRates, g.SuccessRate)
	}
	successRate := stats.Mean(successRates)
	sampleFactor := math.Min(1, math.Log10(float64(len(report.Outcomes))+1)/2)

	factors := []decision.ConfidenceFactor{
		{Factor: "success_rate", Weight: 0.4, Value: successRate},
		{Factor: "ranking_separation", Weight: 0.3, Value: separation},
		{Factor: "sample_size", Weight: 0.3, Value: sampleFactor},
	}
	confidence := clamp01(0.4*successRate + 0.3*separation + 0.3*sampleFactor)

	return &Result{
		Outputs:    outputs,
		InputsFull: in,
		InputsSummary: map[string]any{
			"targets": len(in.Targets),
			"tests":   len(in.Tests),
		},
		Confidence:  confidence,
		Factors:     factors,
		Constraints: constraintStrings(report.Constraints),
	}, nil
}

// rankGroups scores every group on normalized metrics. Latency and cost are
// normalized against the best (lowest) group so cheaper and faster always
// score higher.
func rankGroups(groups []eval.AggregatedStats, weights map[string]float64) []modelRanking {
	if len(groups) == 0 {
		return nil
	}
	minLatency, minCost := math.Inf(1), math.Inf(1)
	maxThroughput := 0.0
	for _, g := range groups {
		if g.MeanLatencyMs > 0 && g.MeanLatencyMs < minLatency {
			minLatency = g.MeanLatencyMs
		}
		if g.AvgCostPerRequest > 0 && g.AvgCostPerRequest < minCost {
			minCost = g.AvgCostPerRequest
		}
		if g.AvgTokensPerSecond > maxThroughput {
			maxThroughput = g.AvgTokensPerSecond
		}
	}

	rankings := make([]modelRanking, 0, len(groups))
	for _, g := range groups {
		latencyScore := 0.0
		if g.MeanLatencyMs > 0 && !math.IsInf(minLatency, 1) {
			latencyScore = minLatency / g.MeanLatencyMs
		}
		costScore := 0.0
		if g.AvgCostPerRequest > 0 && !math.IsInf(minCost, 1) {
			costScore = minCost / g.AvgCostPerRequest
		}
		throughputScore := 0.0
		if maxThroughput > 0 {
			throughputScore = g.AvgTokensPerSecond / maxThroughput
		}
		score := weights["success_rate"]*g.SuccessRate +
			weights["latency"]*latencyScore +
			weights["cost"]*costScore +
			weights["throughput"]*throughputScore
		rankings = append(rankings, modelRanking{
			TargetRef:      string(g.ProviderName) + "/" + g.ModelID,
			CompositeScore: score,
			SuccessRate:    g.SuccessRate,
			MeanLatencyMs:  g.MeanLatencyMs,
			AvgCostUSD:     g.AvgCostPerRequest,
			TokensPerSec:   g.AvgTokensPerSecond,
		})
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].CompositeScore != rankings[j].CompositeScore {
			return rankings[i].CompositeScore > rankings[j].CompositeScore
		}
		return rankings[i].TargetRef < rankings[j].TargetRef
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}

func latenciesFor(outcomes []eval.CallOutcome, targetRef string) []float64 {
	var out []float64
	for _, o := range outcomes {
		if o.TargetRef == targetRef && o.Success {
			out = append(out, o.LatencyMs)
		}
	}
	return out
}
