package agents

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/stats"
)

const (
	defaultRegressionAlpha = 0.05
	// Effect sizes below this are reported but not flagged even when
	// statistically significant.
	minMeaningfulEffect = 0.2
)

// RegressionAgent compares two job reports of the same plan and flags
// statistically significant metric shifts per (provider, model) group.
type RegressionAgent struct{}

// NewRegressionAgent builds the regression detector.
func NewRegressionAgent() *RegressionAgent { return &RegressionAgent{} }

func (a *RegressionAgent) ID() string           { return "regression-detection" }
func (a *RegressionAgent) Version() string      { return "1.0.0" }
func (a *RegressionAgent) DecisionType() string { return "regression_detection" }

type regressionInput struct {
	Baseline eval.JobReport `json:"baseline"`
	Current  eval.JobReport `json:"current"`
	Alpha    *float64       `json:"alpha,omitempty"`
}

type metricComparison struct {
	Metric       string            `json:"metric"`
	BaselineMean float64           `json:"baseline_mean"`
	CurrentMean  float64           `json:"current_mean"`
	TTest        stats.TTestResult `json:"t_test"`
	CohenD       float64           `json:"cohen_d"`
	CILow        float64           `json:"ci_low"`
	CIHigh       float64           `json:"ci_high"`
	Regressed    bool              `json:"regressed"`
	Improved     bool              `json:"improved"`
}

type groupComparison struct {
	TargetRef       string             `json:"target_ref"`
	BaselineSamples int                `json:"baseline_samples"`
	CurrentSamples  int                `json:"current_samples"`
	Metrics         []metricComparison `json:"metrics"`
}

func (a *RegressionAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in regressionInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if len(in.Baseline.Outcomes) == 0 {
		return nil, eval.Invalid("baseline.outcomes", "must not be empty")
	}
	if len(in.Current.Outcomes) == 0 {
		return nil, eval.Invalid("current.outcomes", "must not be empty")
	}
	alpha := defaultRegressionAlpha
	if in.Alpha != nil {
		if *in.Alpha <= 0 || *in.Alpha >= 1 {
			return nil, eval.Invalid("alpha", "must be in (0,1), got %g", *in.Alpha)
		}
		alpha = *in.Alpha
	}

	baseline := metricsByGroup(in.Baseline.Outcomes)
	current := metricsByGroup(in.Current.Outcomes)

	constraints := []string{}
	var groups []groupComparison
	regressions, comparisons := 0, 0
	var minSamples int = math.MaxInt

	for _, ref := range sharedRefs(baseline, current) {
		b, c := baseline[ref], current[ref]
		if len(b.latencies) < 2 || len(c.latencies) < 2 {
			constraints = append(constraints, string(eval.ConstraintSampleMismatch))
			continue
		}
		if n := minInt(len(b.latencies), len(c.latencies)); n < minSamples {
			minSamples = n
		}

		g := groupComparison{
			TargetRef:       ref,
			BaselineSamples: len(b.latencies),
			CurrentSamples:  len(c.latencies),
		}
		// Latency and cost regress upward, throughput downward.
		g.Metrics = append(g.Metrics,
			compareMetric("latency_ms", b.latencies, c.latencies, alpha, true),
			compareMetric("cost_usd", b.costs, c.costs, alpha, true),
		)
		if len(b.throughput) >= 2 && len(c.throughput) >= 2 {
			g.Metrics = append(g.Metrics, compareMetric("tokens_per_second", b.throughput, c.throughput, alpha, false))
		}
		for _, m := range g.Metrics {
			comparisons++
			if m.Regressed {
				regressions++
			}
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return nil, eval.Invalid("current", "no comparable groups between the two reports")
	}

	sampleFactor := math.Min(1, math.Log10(float64(minSamples)+1)/2)
	coverage := float64(len(groups)) / float64(maxInt(len(baseline), len(current)))
	factors := []decision.ConfidenceFactor{
		{Factor: "sample_size", Weight: 0.5, Value: sampleFactor},
		{Factor: "group_coverage", Weight: 0.5, Value: coverage},
	}
	confidence := clamp01(0.5*sampleFactor + 0.5*coverage)

	return &Result{
		Outputs: map[string]any{
			"groups":           groups,
			"regressions":      regressions,
			"comparisons":      comparisons,
			"alpha":            alpha,
			"has_regression":   regressions > 0,
			"baseline_started": in.Baseline.StartedAt,
			"current_started":  in.Current.StartedAt,
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"baseline_outcomes": len(in.Baseline.Outcomes),
			"current_outcomes":  len(in.Current.Outcomes),
			"alpha":             alpha,
		},
		Confidence:  confidence,
		Factors:     factors,
		Constraints: dedupe(constraints),
	}, nil
}

type groupMetrics struct {
	latencies  []float64
	costs      []float64
	throughput []float64
}

func metricsByGroup(outcomes []eval.CallOutcome) map[string]*groupMetrics {
	out := make(map[string]*groupMetrics)
	for _, o := range outcomes {
		g, ok := out[o.TargetRef]
		if !ok {
			g = &groupMetrics{}
			out[o.TargetRef] = g
		}
		if !o.Success {
			continue
		}
		g.latencies = append(g.latencies, o.LatencyMs)
		g.costs = append(g.costs, o.CostUSD())
		if o.TokensPerSecond != nil {
			g.throughput = append(g.throughput, *o.TokensPerSecond)
		}
	}
	return out
}

// compareMetric runs the Welch's t + Cohen's d + CI battery on one metric.
// higherIsWorse flips the direction used to call a shift a regression.
func compareMetric(name string, baseline, current []float64, alpha float64, higherIsWorse bool) metricComparison {
	t := stats.WelchT(baseline, current)
	d := stats.CohenD(baseline, current)
	lo, hi := stats.ConfidenceInterval(current, 1-alpha)

	significant := t.PValue < alpha && math.Abs(d) >= minMeaningfulEffect
	worse := stats.Mean(current) > stats.Mean(baseline)
	if !higherIsWorse {
		worse = !worse
	}

	return metricComparison{
		Metric:       name,
		BaselineMean: stats.Mean(baseline),
		CurrentMean:  stats.Mean(current),
		TTest:        t,
		CohenD:       d,
		CILow:        lo,
		CIHigh:       hi,
		Regressed:    significant && worse,
		Improved:     significant && !worse,
	}
}

func sharedRefs(a, b map[string]*groupMetrics) []string {
	var refs []string
	for ref := range a {
		if _, ok := b[ref]; ok {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs
}

func dedupe(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ss))
	var out []string
	for _, s := range ss {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
