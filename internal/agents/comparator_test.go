package agents

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

func TestRankGroupsOrdersByComposite(t *testing.T) {
	groups := []eval.AggregatedStats{
		{
			ProviderName: eval.ProviderOpenAI, ModelID: "gpt-4o",
			SuccessRate: 1.0, MeanLatencyMs: 100, AvgCostPerRequest: 0.01, AvgTokensPerSecond: 50,
		},
		{
			ProviderName: eval.ProviderAnthropic, ModelID: "claude-3-5-sonnet-20241022",
			SuccessRate: 0.5, MeanLatencyMs: 400, AvgCostPerRequest: 0.04, AvgTokensPerSecond: 10,
		},
	}
	rankings := rankGroups(groups, comparatorWeights)
	if len(rankings) != 2 {
		t.Fatalf("rankings: %v", rankings)
	}
	if rankings[0].TargetRef != "openai/gpt-4o" || rankings[0].Rank != 1 {
		t.Fatalf("winner: %+v", rankings[0])
	}
	// Best group scores 1.0 on every normalized metric.
	if math.Abs(rankings[0].CompositeScore-1.0) > 1e-9 {
		t.Fatalf("composite for dominant group: got %g", rankings[0].CompositeScore)
	}
	if rankings[1].CompositeScore >= rankings[0].CompositeScore {
		t.Fatal("ranking order violated")
	}
}

func TestRankGroupsTieBreaksByRef(t *testing.T) {
	groups := []eval.AggregatedStats{
		{ProviderName: eval.ProviderOpenAI, ModelID: "b", SuccessRate: 1.0},
		{ProviderName: eval.ProviderOpenAI, ModelID: "a", SuccessRate: 1.0},
	}
	rankings := rankGroups(groups, comparatorWeights)
	if rankings[0].TargetRef != "openai/a" {
		t.Fatalf("ties break by target ref: %+v", rankings)
	}
}

func TestComparatorExecute(t *testing.T) {
	engine := stubEngine(okOutcome)
	a := NewComparatorAgent(engine)

	input := `{
		"targets": [
			{"provider_name": "openai", "model_id": "gpt-4o-mini", "timeout_ms": 10000},
			{"provider_name": "openai", "model_id": "gpt-4o", "timeout_ms": 10000}
		],
		"tests": [{"test_id": "t1", "prompt": "Say OK"}],
		"config": {"iterations_per_test": 3}
	}`
	res, err := a.Execute(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	rankings := res.Outputs["rankings"].([]modelRanking)
	if len(rankings) != 2 {
		t.Fatalf("rankings: %v", rankings)
	}
	if _, ok := res.Outputs["winner"]; !ok {
		t.Fatal("winner should be reported")
	}
	if _, ok := res.Outputs["top_two_latency_utest"]; !ok {
		t.Fatal("top-two U test should be reported")
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Fatalf("confidence: %g", res.Confidence)
	}
}

func TestComparatorCustomWeights(t *testing.T) {
	a := NewComparatorAgent(stubEngine(okOutcome))
	input := `{
		"targets": [
			{"provider_name": "openai", "model_id": "gpt-4o-mini", "timeout_ms": 10000},
			{"provider_name": "openai", "model_id": "gpt-4o", "timeout_ms": 10000}
		],
		"tests": [{"test_id": "t1", "prompt": "Say OK"}],
		"weights": {"success_rate": 0.7, "latency": 0.1, "cost": 0.1, "throughput": 0.1}
	}`
	res, err := a.Execute(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	weights := res.Outputs["weights"].(map[string]float64)
	if weights["success_rate"] != 0.7 {
		t.Fatalf("weights not applied: %v", weights)
	}
}

func TestComparatorValidation(t *testing.T) {
	a := NewComparatorAgent(stubEngine(okOutcome))
	cases := []struct {
		name  string
		input string
	}{
		{"one target", `{"targets": [{"provider_name": "openai", "model_id": "m", "timeout_ms": 1000}], "tests": [{"test_id": "t", "prompt": "p"}]}`},
		{"unknown weight metric", `{
			"targets": [
				{"provider_name": "openai", "model_id": "a", "timeout_ms": 1000},
				{"provider_name": "openai", "model_id": "b", "timeout_ms": 1000}
			],
			"tests": [{"test_id": "t", "prompt": "p"}],
			"weights": {"accuracy": 1.0}
		}`},
		{"weights sum", `{
			"targets": [
				{"provider_name": "openai", "model_id": "a", "timeout_ms": 1000},
				{"provider_name": "openai", "model_id": "b", "timeout_ms": 1000}
			],
			"tests": [{"test_id": "t", "prompt": "p"}],
			"weights": {"success_rate": 0.5, "latency": 0.1}
		}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := a.Execute(context.Background(), json.RawMessage(c.input))
			var ve *eval.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}
