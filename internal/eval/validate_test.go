package eval

import (
	"errors"
	"strings"
	"testing"
)

func validPlan() *JobPlan {
	return &JobPlan{
		Targets: []ProviderTarget{{
			ProviderName: ProviderOpenAI,
			ModelID:      "gpt-4o-mini",
			TimeoutMs:    30000,
		}},
		Tests: []TestCase{{TestID: "t1", Prompt: "Say OK"}},
	}
}

func TestValidatePlanAppliesDefaults(t *testing.T) {
	p := validPlan()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
	if p.Config.Concurrency != 1 || p.Config.IterationsPerTest != 1 {
		t.Fatalf("config defaults not applied: %+v", p.Config)
	}
	if p.PriorityOrder != ByTargetThenTest {
		t.Fatalf("priority order default: got %q", p.PriorityOrder)
	}
}

func TestValidatePlanRejections(t *testing.T) {
	neg := -1
	zeroCost := 0.0
	cases := []struct {
		name   string
		mutate func(*JobPlan)
		field  string
	}{
		{"no targets", func(p *JobPlan) { p.Targets = nil }, "targets"},
		{"no tests", func(p *JobPlan) { p.Tests = nil }, "tests"},
		{"bad provider", func(p *JobPlan) { p.Targets[0].ProviderName = "gpt" }, "targets[0].provider_name"},
		{"empty model", func(p *JobPlan) { p.Targets[0].ModelID = "  " }, "targets[0].model_id"},
		{"zero timeout", func(p *JobPlan) { p.Targets[0].TimeoutMs = 0 }, "targets[0].timeout_ms"},
		{"negative retries", func(p *JobPlan) { p.Targets[0].MaxRetries = -1 }, "targets[0].max_retries"},
		{"empty test id", func(p *JobPlan) { p.Tests[0].TestID = "" }, "tests[0].test_id"},
		{"empty prompt", func(p *JobPlan) { p.Tests[0].Prompt = "" }, "tests[0].prompt"},
		{"bad max tokens", func(p *JobPlan) { p.Tests[0].MaxTokens = &neg }, "tests[0].max_tokens"},
		{"temperature range", func(p *JobPlan) { p.Tests[0].Temperature = 2.5 }, "tests[0].temperature"},
		{"top_p range", func(p *JobPlan) { p.Tests[0].TopP = 1.5 }, "tests[0].top_p"},
		{"duplicate test ids", func(p *JobPlan) {
			p.Tests = append(p.Tests, TestCase{TestID: "t1", Prompt: "again"})
		}, "tests[1].test_id"},
		{"negative concurrency", func(p *JobPlan) { p.Config.Concurrency = -2 }, "config.concurrency"},
		{"negative warm up", func(p *JobPlan) { p.Config.WarmUpRuns = -1 }, "config.warm_up_runs"},
		{"zero cost budget", func(p *JobPlan) { p.Config.MaxTotalCostUSD = &zeroCost }, "config.max_total_cost_usd"},
		{"bad priority order", func(p *JobPlan) { p.PriorityOrder = "round_robin" }, "priority_order"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := validPlan()
			c.mutate(p)
			err := p.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != c.field {
				t.Fatalf("field: got %q, want %q", ve.Field, c.field)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Invalid("targets[2].model_id", "must not be empty")
	if !strings.Contains(err.Error(), "targets[2].model_id") {
		t.Fatalf("message should carry the field path: %q", err.Error())
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := ExecutionConfig{Concurrency: 8, IterationsPerTest: 5, WarmUpRuns: 2}
	if err := cfg.Normalize("config"); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Concurrency != 8 || cfg.IterationsPerTest != 5 || cfg.WarmUpRuns != 2 {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestDefaultExecutionConfig(t *testing.T) {
	cfg := DefaultExecutionConfig()
	if cfg.Concurrency != 1 || cfg.IterationsPerTest != 1 || !cfg.SaveResponses || cfg.FailFast {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestErrorKindRetryable(t *testing.T) {
	retryable := []ErrorKind{ErrTimeout, ErrRateLimited, ErrServer, ErrConnection}
	terminal := []ErrorKind{ErrAuthentication, ErrContextExceeded, ErrContentFiltered, ErrInvalidResponse, ErrUnknown}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestTargetKey(t *testing.T) {
	target := ProviderTarget{ProviderName: ProviderAnthropic, ModelID: "claude-3-5-haiku-20241022"}
	if target.Key() != "anthropic/claude-3-5-haiku-20241022" {
		t.Fatalf("key: got %q", target.Key())
	}
}

func TestCallOutcomeCost(t *testing.T) {
	o := CallOutcome{InputCostUSD: 0.25, OutputCostUSD: 0.5}
	if o.CostUSD() != 0.75 {
		t.Fatalf("cost: got %g", o.CostUSD())
	}
}
