package executor

import (
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// workItem is one planned (target, test, iteration) invocation. The iteration
// index is assigned here and is authoritative for the published outcome.
type workItem struct {
	target    eval.ProviderTarget
	targetKey string
	test      eval.TestCase
	iteration int
	warmUp    bool
}

// buildWorkItems expands a plan into the ordered main-phase work list.
//
// by_target_then_test finishes one target before moving to the next,
// by_test_then_target finishes one test across all targets first, and
// interleaved alternates targets on every dispatch so no single backend sees
// a sustained burst.
func buildWorkItems(plan *eval.JobPlan) []workItem {
	iters := plan.Config.IterationsPerTest
	items := make([]workItem, 0, len(plan.Targets)*len(plan.Tests)*iters)

	switch plan.PriorityOrder {
	case eval.ByTestThenTarget:
		for _, test := range plan.Tests {
			for _, target := range plan.Targets {
				for i := 0; i < iters; i++ {
					items = append(items, workItem{target: target, targetKey: target.Key(), test: test, iteration: i})
				}
			}
		}
	case eval.Interleaved:
		for i := 0; i < iters; i++ {
			for _, test := range plan.Tests {
				for _, target := range plan.Targets {
					items = append(items, workItem{target: target, targetKey: target.Key(), test: test, iteration: i})
				}
			}
		}
	default: // by_target_then_test
		for _, target := range plan.Targets {
			for _, test := range plan.Tests {
				for i := 0; i < iters; i++ {
					items = append(items, workItem{target: target, targetKey: target.Key(), test: test, iteration: i})
				}
			}
		}
	}
	return items
}

// buildWarmUpItems expands the warm-up phase: each target runs the first test
// warm_up_runs times. Warm-up outcomes are discarded before aggregation.
func buildWarmUpItems(plan *eval.JobPlan) []workItem {
	if plan.Config.WarmUpRuns <= 0 || len(plan.Tests) == 0 {
		return nil
	}
	first := plan.Tests[0]
	items := make([]workItem, 0, len(plan.Targets)*plan.Config.WarmUpRuns)
	for _, target := range plan.Targets {
		for i := 0; i < plan.Config.WarmUpRuns; i++ {
			items = append(items, workItem{target: target, targetKey: target.Key(), test: first, iteration: i, warmUp: true})
		}
	}
	return items
}
