package stats

import (
	"sort"
	"strings"

	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// Aggregate reduces call outcomes into per-(provider, model) group stats.
// Latency percentiles cover successful calls only; cost and token totals
// cover every outcome, including failures that accrued prompt cost. Groups
// are returned sorted by (provider, model) so reports are deterministic.
func Aggregate(outcomes []eval.CallOutcome) []eval.AggregatedStats {
	byKey := make(map[string][]eval.CallOutcome)
	for _, o := range outcomes {
		byKey[o.TargetRef] = append(byKey[o.TargetRef], o)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]eval.AggregatedStats, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, computeGroup(k, byKey[k]))
	}
	return groups
}

func computeGroup(targetRef string, outcomes []eval.CallOutcome) eval.AggregatedStats {
	provider, model := splitTargetRef(targetRef)
	g := eval.AggregatedStats{
		ProviderName: provider,
		ModelID:      model,
		Total:        len(outcomes),
	}

	var latencies, tpsValues []float64
	for _, o := range outcomes {
		g.TotalCostUSD += o.CostUSD()
		g.TotalTokens += o.PromptTokens + o.CompletionTokens
		if o.Success {
			g.Succeeded++
			latencies = append(latencies, o.LatencyMs)
			if o.TokensPerSecond != nil {
				tpsValues = append(tpsValues, *o.TokensPerSecond)
			}
		} else {
			g.Failed++
		}
	}

	if g.Total > 0 {
		g.SuccessRate = float64(g.Succeeded) / float64(g.Total)
		g.AvgTokensPerRequest = float64(g.TotalTokens) / float64(g.Total)
		g.AvgCostPerRequest = g.TotalCostUSD / float64(g.Total)
	}

	g.P50LatencyMs = Percentile(latencies, 50)
	g.P95LatencyMs = Percentile(latencies, 95)
	g.P99LatencyMs = Percentile(latencies, 99)
	g.MeanLatencyMs = Mean(latencies)
	g.MinLatencyMs = Min(latencies)
	g.MaxLatencyMs = Max(latencies)
	g.StdDevLatencyMs = StdDev(latencies)
	g.AvgTokensPerSecond = Mean(tpsValues)

	return g
}

func splitTargetRef(ref string) (eval.ProviderName, string) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		return eval.ProviderName(ref[:i]), ref[i+1:]
	}
	return eval.ProviderName(ref), ""
}
