// Package executor runs a job plan against its provider targets: a bounded
// worker pool fans invocations out, a retry loop with exponential backoff and
// jitter absorbs transient failures, per-target state machines quarantine
// broken backends, and a reducer folds the outcome stream into a JobReport.
package executor

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/catalog"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers"
	"github.com/LLM-Dev-Ops/evalbench/internal/stats"
)

const (
	retryBaseDelay   = 100 * time.Millisecond
	retryFactor      = 2.0
	retryJitterRatio = 0.2
)

// InvokerSource resolves the wire adapter for a target. Satisfied by
// registry.Registry and by test stubs.
type InvokerSource interface {
	For(target eval.ProviderTarget) providers.Invoker
}

// Metrics receives execution telemetry. Satisfied by metrics.Registry.
type Metrics interface {
	ObserveCall(targetRef string, success bool, errorKind string, latencySeconds float64)
	ObserveQuarantine(targetRef string)
}

// Engine executes job plans. Safe for concurrent use; each Run carries its
// own state.
type Engine struct {
	invokers InvokerSource
	catalog  *catalog.Catalog
	logger   *slog.Logger
	metrics  Metrics

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) bool
	jitter func() float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time and sleep sources for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) bool) Option {
	return func(e *Engine) {
		e.now = now
		e.sleep = sleep
	}
}

// NewEngine builds an executor over the given adapter source and price
// catalog.
func NewEngine(invokers InvokerSource, cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		invokers: invokers,
		catalog:  cat,
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepCtx,
		jitter:   rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// jobState is the per-Run shared state threaded through both phases.
type jobState struct {
	plan        *eval.JobPlan
	budget      *budget
	constraints *constraintSet
	tracker     *tracker
	cancel      context.CancelFunc
	failFast    bool

	failOnce sync.Once
}

// Run executes the plan and returns the aggregated report. The only error
// Run returns is plan validation failure; call failures are data, recorded
// in the outcomes.
func (e *Engine) Run(ctx context.Context, plan *eval.JobPlan) (*eval.JobReport, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	startedAt := e.now().UTC()
	st := &jobState{
		plan:        plan,
		budget:      newBudget(plan.Config, startedAt),
		constraints: newConstraintSet(),
		tracker:     newTracker(plan.Targets),
		failFast:    plan.Config.FailFast,
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	st.cancel = cancel

	// Unknown pricing means cost and throughput figures are estimates.
	for _, t := range plan.Targets {
		if _, ok := e.catalog.Lookup(t.ProviderName, t.ModelID); !ok {
			st.constraints.add(eval.ConstraintLowConfidence)
		}
	}

	if warm := buildWarmUpItems(plan); len(warm) > 0 {
		e.logger.Info("warm-up phase starting",
			"correlation_id", plan.CorrelationID,
			"calls", len(warm))
		e.runPhase(jobCtx, st, warm, nil)
	}

	var outcomes []eval.CallOutcome
	items := buildWorkItems(plan)
	e.logger.Info("execution phase starting",
		"correlation_id", plan.CorrelationID,
		"targets", len(plan.Targets),
		"tests", len(plan.Tests),
		"calls", len(items),
		"concurrency", plan.Config.Concurrency)
	e.runPhase(jobCtx, st, items, &outcomes)

	st.tracker.drainAll()

	report := e.reduce(plan, outcomes, st, startedAt)
	e.logger.Info("execution finished",
		"correlation_id", plan.CorrelationID,
		"outcomes", len(report.Outcomes),
		"cost_usd", st.budget.cost(),
		"constraints", len(report.Constraints))
	return report, nil
}

// runPhase drives one phase through the worker pool. Warm-up passes a nil
// collector and its outcomes are discarded.
func (e *Engine) runPhase(ctx context.Context, st *jobState, items []workItem, collect *[]eval.CallOutcome) {
	concurrency := st.plan.Config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	workCh := make(chan workItem, 2*concurrency)
	outCh := make(chan eval.CallOutcome, 2*concurrency)

	scoring := collect != nil

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				// Work already queued when the job is cancelled is skipped,
				// not failed: it never started, so it produces no outcome.
				if ctx.Err() != nil {
					continue
				}
				out := e.runCall(ctx, st, item)
				// Triggering here, before the next item is picked up, keeps
				// the outcome count exact under fail-fast.
				if scoring && st.failFast && !out.Success {
					st.failOnce.Do(func() {
						st.constraints.add(eval.ConstraintFailFastTriggered)
						e.logger.Warn("fail-fast triggered, cancelling remaining work",
							"correlation_id", st.plan.CorrelationID,
							"target", out.TargetRef,
							"test", out.TestRef,
							"error_kind", string(out.ErrorKind))
						st.cancel()
					})
				}
				outCh <- out
			}
		}()
	}

	go func() {
		defer close(workCh)
		e.dispatch(ctx, st, items, workCh, collect == nil)
	}()

	go func() {
		wg.Wait()
		close(outCh)
	}()

	for o := range outCh {
		if collect != nil {
			*collect = append(*collect, o)
		}
	}
}

// dispatch feeds the bounded work queue, gating every item on the budget and
// the job context.
func (e *Engine) dispatch(ctx context.Context, st *jobState, items []workItem, workCh chan<- workItem, warmUp bool) {
	delay := time.Duration(0)
	if st.plan.Config.RequestDelayMs != nil {
		delay = time.Duration(*st.plan.Config.RequestDelayMs) * time.Millisecond
	}

	for i, item := range items {
		if ctx.Err() != nil {
			return
		}
		if ok, constraint := st.budget.admit(e.now()); !ok {
			st.constraints.add(constraint)
			if warmUp {
				st.constraints.add(eval.ConstraintWarmUpSkipped)
			}
			e.logger.Warn("budget exhausted, skipping remaining work",
				"correlation_id", st.plan.CorrelationID,
				"constraint", string(constraint),
				"dispatched", i,
				"remaining", len(items)-i)
			return
		}
		if delay > 0 && i > 0 {
			if !e.sleep(ctx, delay) {
				return
			}
		}
		// Send blocks until a worker frees up; the queue stays bounded.
		select {
		case <-ctx.Done():
			return
		case workCh <- item:
		}
	}
}

// runCall executes one work item end to end: quarantine gate, the invocation
// itself, and the retry loop. Only the final attempt's outcome is published.
func (e *Engine) runCall(ctx context.Context, st *jobState, item workItem) eval.CallOutcome {
	status := st.tracker.get(item.targetKey)

	ok, kind := status.beginCall()
	if !ok {
		st.constraints.add(eval.ConstraintProviderUnavailable)
		return e.shortCircuitOutcome(item, kind)
	}

	invoker := e.invokers.For(item.target)
	maxRetries := item.target.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var out eval.CallOutcome
	for attempt := 0; ; attempt++ {
		out = invoker.Invoke(ctx, item.target, item.test)
		st.budget.addCost(out.CostUSD())

		if out.Success || !out.ErrorKind.Retryable() || attempt >= maxRetries || ctx.Err() != nil {
			break
		}
		if status.isQuarantined() {
			break
		}

		delay := e.backoffDelay(attempt)
		if hint := time.Duration(out.RetryAfterSecs) * time.Second; hint > delay {
			delay = hint
			st.constraints.add(eval.ConstraintRateLimitApplied)
		}
		e.logger.Debug("retrying call",
			"target", item.targetKey,
			"test", item.test.TestID,
			"attempt", attempt+1,
			"error_kind", string(out.ErrorKind),
			"delay_ms", delay.Milliseconds())
		if !e.sleep(ctx, delay) {
			break
		}
	}

	out.TargetRef = item.targetKey
	out.TestRef = item.test.TestID
	out.Iteration = item.iteration

	status.endCall(out)
	if status.isQuarantined() {
		e.logger.Warn("target quarantined",
			"target", item.targetKey,
			"error_kind", string(out.ErrorKind))
		if e.metrics != nil {
			e.metrics.ObserveQuarantine(item.targetKey)
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveCall(item.targetKey, out.Success, string(out.ErrorKind), out.LatencyMs/1000)
	}
	return out
}

// shortCircuitOutcome records a call skipped because its target is
// quarantined. The error kind carries the quarantine cause.
func (e *Engine) shortCircuitOutcome(item workItem, kind eval.ErrorKind) eval.CallOutcome {
	if kind == "" {
		kind = eval.ErrUnknown
	}
	now := e.now().UTC()
	return eval.CallOutcome{
		TargetRef:    item.targetKey,
		TestRef:      item.test.TestID,
		Iteration:    item.iteration,
		Success:      false,
		FinishReason: eval.FinishError,
		ErrorKind:    kind,
		ErrorMessage: "target quarantined, call skipped",
		StartedAt:    now,
		CompletedAt:  now,
	}
}

// backoffDelay computes attempt's exponential delay with +/-20% jitter.
func (e *Engine) backoffDelay(attempt int) time.Duration {
	d := float64(retryBaseDelay)
	for i := 0; i < attempt; i++ {
		d *= retryFactor
	}
	// jitter in [1-ratio, 1+ratio)
	d *= 1 - retryJitterRatio + 2*retryJitterRatio*e.jitter()
	return time.Duration(d)
}

// reduce folds the outcome stream into the final report: deterministic
// ordering, response stripping, estimate flagging, and per-group stats.
func (e *Engine) reduce(plan *eval.JobPlan, outcomes []eval.CallOutcome, st *jobState, startedAt time.Time) *eval.JobReport {
	sort.Slice(outcomes, func(i, j int) bool {
		a, b := outcomes[i], outcomes[j]
		if a.TargetRef != b.TargetRef {
			return a.TargetRef < b.TargetRef
		}
		if a.TestRef != b.TestRef {
			return a.TestRef < b.TestRef
		}
		return a.Iteration < b.Iteration
	})

	for i := range outcomes {
		if outcomes[i].TokensEstimated {
			st.constraints.add(eval.ConstraintLowConfidence)
		}
		if !plan.Config.SaveResponses {
			outcomes[i].Content = ""
		}
	}

	return &eval.JobReport{
		CorrelationID: plan.CorrelationID,
		Outcomes:      outcomes,
		Groups:        stats.Aggregate(outcomes),
		Constraints:   st.constraints.list(),
		StartedAt:     startedAt,
		CompletedAt:   e.now().UTC(),
	}
}

// sleepCtx sleeps for d or until the context ends, reporting whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
