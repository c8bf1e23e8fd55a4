package agents

import (
	"context"
	"sync"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/catalog"
	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/executor"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers"
)

// stubInvoker answers every call through fn.
type stubInvoker struct {
	fn func(target eval.ProviderTarget, test eval.TestCase) eval.CallOutcome
}

func (s *stubInvoker) ID() string { return "stub" }

func (s *stubInvoker) Invoke(ctx context.Context, target eval.ProviderTarget, test eval.TestCase) eval.CallOutcome {
	return s.fn(target, test)
}

type stubSource struct{ invoker providers.Invoker }

func (s *stubSource) For(eval.ProviderTarget) providers.Invoker { return s.invoker }

// stubEngine builds an executor whose calls all resolve through fn, with
// sleeps elided so retry-heavy paths stay fast.
func stubEngine(fn func(target eval.ProviderTarget, test eval.TestCase) eval.CallOutcome) *executor.Engine {
	return executor.NewEngine(
		&stubSource{invoker: &stubInvoker{fn: fn}},
		catalog.Default(),
		executor.WithClock(time.Now, func(ctx context.Context, d time.Duration) bool {
			return ctx.Err() == nil
		}),
	)
}

func okOutcome(target eval.ProviderTarget, test eval.TestCase) eval.CallOutcome {
	now := time.Now().UTC()
	tps := 50.0
	return eval.CallOutcome{
		TargetRef:        target.Key(),
		TestRef:          test.TestID,
		Success:          true,
		Content:          "OK",
		FinishReason:     eval.FinishStop,
		LatencyMs:        100,
		TokensPerSecond:  &tps,
		PromptTokens:     5,
		CompletionTokens: 1,
		StartedAt:        now,
		CompletedAt:      now,
	}
}

func benchTarget(model string) eval.ProviderTarget {
	return eval.ProviderTarget{
		ProviderName: eval.ProviderOpenAI,
		ModelID:      model,
		TimeoutMs:    10000,
	}
}

// recordingSink captures persisted records and telemetry for assertions.
type recordingSink struct {
	mu      sync.Mutex
	records []decision.Record
	events  []decision.TelemetryEvent
}

func (s *recordingSink) PersistDecision(ctx context.Context, rec decision.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) PersistTelemetry(ctx context.Context, ev decision.TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) snapshot() ([]decision.Record, []decision.TelemetryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]decision.Record(nil), s.records...), append([]decision.TelemetryEvent(nil), s.events...)
}
