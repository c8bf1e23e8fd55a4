package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

const (
	strategyCombinatorial = "combinatorial"
	strategyRandom        = "random"

	maxSyntheticCases = 1000
)

// SyntheticAgent expands prompt templates with placeholder values into
// ready-to-run test cases. Generation is deterministic: combinatorial
// enumeration in placeholder order, or seeded random sampling.
type SyntheticAgent struct{}

// NewSyntheticAgent builds the synthetic-data generator.
func NewSyntheticAgent() *SyntheticAgent { return &SyntheticAgent{} }

func (a *SyntheticAgent) ID() string           { return "synthetic-data-generator" }
func (a *SyntheticAgent) Version() string      { return "1.0.0" }
func (a *SyntheticAgent) DecisionType() string { return "synthetic_data_generation" }

type syntheticInput struct {
	Templates []struct {
		TemplateID string `json:"template_id,omitempty"`
		Template   string `json:"template"`
	} `json:"templates"`
	Placeholders map[string][]string `json:"placeholders"`
	Strategy     string              `json:"strategy,omitempty"`
	Count        int                 `json:"count,omitempty"`
	Seed         int64               `json:"seed,omitempty"`
}

func (a *SyntheticAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in syntheticInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if len(in.Templates) == 0 {
		return nil, eval.Invalid("templates", "at least one template is required")
	}
	strategy := in.Strategy
	if strategy == "" {
		strategy = strategyCombinatorial
	}
	if strategy != strategyCombinatorial && strategy != strategyRandom {
		return nil, eval.Invalid("strategy", "unknown strategy %q", strategy)
	}
	if strategy == strategyRandom && in.Count <= 0 {
		return nil, eval.Invalid("count", "random strategy requires count > 0")
	}
	for name, values := range in.Placeholders {
		if len(values) == 0 {
			return nil, eval.Invalid("placeholders", "placeholder %q has no values", name)
		}
	}

	var cases []eval.TestCase
	truncated := false
	for ti, t := range in.Templates {
		if strings.TrimSpace(t.Template) == "" {
			return nil, eval.Invalid(fmt.Sprintf("templates[%d].template", ti), "must not be empty")
		}
		id := t.TemplateID
		if id == "" {
			id = fmt.Sprintf("template-%d", ti)
		}
		names := placeholderNames(t.Template, in.Placeholders)

		var expanded []string
		switch strategy {
		case strategyRandom:
			expanded = randomExpand(t.Template, names, in.Placeholders, in.Count, in.Seed+int64(ti))
		default:
			expanded = combinatorialExpand(t.Template, names, in.Placeholders)
		}
		for i, prompt := range expanded {
			if len(cases) >= maxSyntheticCases {
				truncated = true
				break
			}
			cases = append(cases, eval.TestCase{
				TestID: fmt.Sprintf("%s-%d", id, i),
				Prompt: prompt,
			})
		}
	}

	coverageFactor := 1.0
	if truncated {
		coverageFactor = 0.5
	}
	volumeFactor := math.Min(1, math.Log10(float64(len(cases))+1)/2)
	factors := []decision.ConfidenceFactor{
		{Factor: "coverage", Weight: 0.5, Value: coverageFactor},
		{Factor: "volume", Weight: 0.5, Value: volumeFactor},
	}
	confidence := clamp01(0.5*coverageFactor + 0.5*volumeFactor)

	var constraints []string
	if truncated {
		constraints = append(constraints, string(eval.ConstraintMaxSamplesExceeded))
	}

	return &Result{
		Outputs: map[string]any{
			"tests":     cases,
			"generated": len(cases),
			"strategy":  strategy,
			"truncated": truncated,
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"templates":    len(in.Templates),
			"placeholders": len(in.Placeholders),
			"strategy":     strategy,
		},
		Confidence:  confidence,
		Factors:     factors,
		Constraints: constraints,
	}, nil
}

// placeholderNames returns the placeholders referenced by the template, in
// sorted order for deterministic expansion.
func placeholderNames(template string, placeholders map[string][]string) []string {
	var names []string
	for name := range placeholders {
		if strings.Contains(template, "{"+name+"}") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// combinatorialExpand enumerates the full cross product of placeholder
// values in lexicographic placeholder order.
func combinatorialExpand(template string, names []string, placeholders map[string][]string) []string {
	results := []string{template}
	for _, name := range names {
		var next []string
		for _, r := range results {
			for _, v := range placeholders[name] {
				next = append(next, strings.ReplaceAll(r, "{"+name+"}", v))
			}
		}
		results = next
	}
	return results
}

// randomExpand draws count seeded samples, one value per placeholder.
func randomExpand(template string, names []string, placeholders map[string][]string, count int, seed int64) []string {
	rng := rand.New(rand.NewSource(seed))
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s := template
		for _, name := range names {
			values := placeholders[name]
			s = strings.ReplaceAll(s, "{"+name+"}", values[rng.Intn(len(values))])
		}
		out = append(out, s)
	}
	return out
}
