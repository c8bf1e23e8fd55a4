package eval

import (
	"fmt"
	"strings"
)

// ValidationError reports an input that failed boundary validation. Field is
// a dotted path into the offending JSON document (e.g. "targets[0].model_id").
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for the given field path.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks a target against the documented constraints.
func (t ProviderTarget) Validate(path string) error {
	if !t.ProviderName.Valid() {
		return Invalid(path+".provider_name", "unrecognized provider %q", t.ProviderName)
	}
	if strings.TrimSpace(t.ModelID) == "" {
		return Invalid(path+".model_id", "must not be empty")
	}
	if t.TimeoutMs <= 0 {
		return Invalid(path+".timeout_ms", "must be > 0, got %d", t.TimeoutMs)
	}
	if t.MaxRetries < 0 {
		return Invalid(path+".max_retries", "must be >= 0, got %d", t.MaxRetries)
	}
	return nil
}

// Validate checks a test case against the documented constraints.
func (c TestCase) Validate(path string) error {
	if strings.TrimSpace(c.TestID) == "" {
		return Invalid(path+".test_id", "must not be empty")
	}
	if c.Prompt == "" {
		return Invalid(path+".prompt", "must not be empty")
	}
	if c.MaxTokens != nil && *c.MaxTokens <= 0 {
		return Invalid(path+".max_tokens", "must be > 0, got %d", *c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return Invalid(path+".temperature", "must be in [0,2], got %g", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return Invalid(path+".top_p", "must be in [0,1], got %g", c.TopP)
	}
	return nil
}

// Normalize applies defaults to unset options and validates the result.
func (c *ExecutionConfig) Normalize(path string) error {
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.IterationsPerTest == 0 {
		c.IterationsPerTest = 1
	}
	if c.Concurrency < 1 {
		return Invalid(path+".concurrency", "must be >= 1, got %d", c.Concurrency)
	}
	if c.WarmUpRuns < 0 {
		return Invalid(path+".warm_up_runs", "must be >= 0, got %d", c.WarmUpRuns)
	}
	if c.IterationsPerTest < 1 {
		return Invalid(path+".iterations_per_test", "must be >= 1, got %d", c.IterationsPerTest)
	}
	if c.MaxDurationMs != nil && *c.MaxDurationMs <= 0 {
		return Invalid(path+".max_duration_ms", "must be > 0, got %d", *c.MaxDurationMs)
	}
	if c.MaxTotalCostUSD != nil && *c.MaxTotalCostUSD <= 0 {
		return Invalid(path+".max_total_cost_usd", "must be > 0, got %g", *c.MaxTotalCostUSD)
	}
	if c.MaxTotalRequests != nil && *c.MaxTotalRequests <= 0 {
		return Invalid(path+".max_total_requests", "must be > 0, got %d", *c.MaxTotalRequests)
	}
	if c.RequestDelayMs != nil && *c.RequestDelayMs < 0 {
		return Invalid(path+".request_delay_ms", "must be >= 0, got %d", *c.RequestDelayMs)
	}
	return nil
}

// Validate checks the whole plan: targets, tests, config, and priority order.
// It also applies config defaults in place.
func (p *JobPlan) Validate() error {
	if len(p.Targets) == 0 {
		return Invalid("targets", "at least one target is required")
	}
	if len(p.Tests) == 0 {
		return Invalid("tests", "at least one test is required")
	}
	for i, t := range p.Targets {
		if err := t.Validate(fmt.Sprintf("targets[%d]", i)); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(p.Tests))
	for i, tc := range p.Tests {
		if err := tc.Validate(fmt.Sprintf("tests[%d]", i)); err != nil {
			return err
		}
		if seen[tc.TestID] {
			return Invalid(fmt.Sprintf("tests[%d].test_id", i), "duplicate test id %q", tc.TestID)
		}
		seen[tc.TestID] = true
	}
	if err := p.Config.Normalize("config"); err != nil {
		return err
	}
	switch p.PriorityOrder {
	case "":
		p.PriorityOrder = ByTargetThenTest
	case ByTargetThenTest, ByTestThenTarget, Interleaved:
	default:
		return Invalid("priority_order", "unrecognized order %q", p.PriorityOrder)
	}
	return nil
}
