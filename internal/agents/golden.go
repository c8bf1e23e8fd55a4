package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/similarity"
)

// Match type priority: the classifier walks these in order and stops at the
// first hit.
const (
	matchExact      = "exact"
	matchSemantic   = "semantic"
	matchPartial    = "partial"
	matchStructural = "structural"
	matchNone       = "no_match"
	matchError      = "error"
)

const (
	defaultSemanticThreshold = 0.9
	defaultPartialThreshold  = 0.5
)

// GoldenAgent validates candidate outputs against a golden dataset,
// classifying each pair into a match type and rolling results up per
// category.
type GoldenAgent struct{}

// NewGoldenAgent builds the golden-dataset validator.
func NewGoldenAgent() *GoldenAgent { return &GoldenAgent{} }

func (a *GoldenAgent) ID() string           { return "golden-dataset-validator" }
func (a *GoldenAgent) Version() string      { return "1.0.0" }
func (a *GoldenAgent) DecisionType() string { return "golden_dataset_validation" }

type goldenInput struct {
	Samples []struct {
		SampleID  string `json:"sample_id,omitempty"`
		Category  string `json:"category,omitempty"`
		Golden    string `json:"golden"`
		Candidate string `json:"candidate"`
	} `json:"samples"`
	SimilarityMethod  string   `json:"similarity_method,omitempty"`
	SemanticThreshold *float64 `json:"semantic_threshold,omitempty"`
	PartialThreshold  *float64 `json:"partial_threshold,omitempty"`
}

type goldenResult struct {
	SampleID  string  `json:"sample_id"`
	Category  string  `json:"category,omitempty"`
	MatchType string  `json:"match_type"`
	Score     float64 `json:"score"`
	Passed    bool    `json:"passed"`
	Severity  string  `json:"severity"`
}

type categoryBreakdown struct {
	Category string `json:"category"`
	Total    int    `json:"total"`
	Passed   int    `json:"passed"`
}

func (a *GoldenAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in goldenInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if len(in.Samples) == 0 {
		return nil, eval.Invalid("samples", "at least one sample is required")
	}
	method, err := similarity.ParseMethod(in.SimilarityMethod)
	if err != nil {
		return nil, eval.Invalid("similarity_method", "%s", err)
	}
	semantic := defaultSemanticThreshold
	if in.SemanticThreshold != nil {
		semantic = *in.SemanticThreshold
	}
	partial := defaultPartialThreshold
	if in.PartialThreshold != nil {
		partial = *in.PartialThreshold
	}
	if partial > semantic {
		return nil, eval.Invalid("partial_threshold", "must not exceed semantic_threshold")
	}

	opts := similarity.DefaultOptions()
	results := make([]goldenResult, 0, len(in.Samples))
	counts := map[string]int{}
	byCategory := map[string]*categoryBreakdown{}
	passed, errored := 0, 0

	for i, s := range in.Samples {
		if s.Golden == "" {
			return nil, eval.Invalid(fmt.Sprintf("samples[%d].golden", i), "must not be empty")
		}
		id := s.SampleID
		if id == "" {
			id = fmt.Sprintf("sample-%d", i)
		}

		mt, score := classifyGolden(s.Golden, s.Candidate, method, opts, semantic, partial)
		r := goldenResult{
			SampleID:  id,
			Category:  s.Category,
			MatchType: mt,
			Score:     score,
			Passed:    mt == matchExact || mt == matchSemantic || mt == matchStructural,
			Severity:  goldenSeverity(mt),
		}
		results = append(results, r)
		counts[mt]++
		if r.Passed {
			passed++
		}
		if mt == matchError {
			errored++
		}
		cat := s.Category
		if cat == "" {
			cat = "uncategorized"
		}
		bd, ok := byCategory[cat]
		if !ok {
			bd = &categoryBreakdown{Category: cat}
			byCategory[cat] = bd
		}
		bd.Total++
		if r.Passed {
			bd.Passed++
		}
	}

	categories := make([]categoryBreakdown, 0, len(byCategory))
	for _, bd := range byCategory {
		categories = append(categories, *bd)
	}
	sortCategories(categories)

	total := len(in.Samples)
	passRate := float64(passed) / float64(total)
	errorFree := 1 - float64(errored)/float64(total)
	sampleFactor := math.Min(1, math.Log10(float64(total)+1)/2)

	factors := []decision.ConfidenceFactor{
		{Factor: "pass_rate", Weight: 0.4, Value: passRate},
		{Factor: "error_free_rate", Weight: 0.3, Value: errorFree},
		{Factor: "sample_size", Weight: 0.3, Value: sampleFactor},
	}
	confidence := clamp01(0.4*passRate + 0.3*errorFree + 0.3*sampleFactor)

	return &Result{
		Outputs: map[string]any{
			"results":            results,
			"pass_rate":          passRate,
			"match_type_counts":  counts,
			"category_breakdown": categories,
			"total":              total,
			"passed":             passed,
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"samples":            total,
			"similarity_method":  string(method),
			"semantic_threshold": semantic,
			"partial_threshold":  partial,
		},
		Confidence: confidence,
		Factors:    factors,
	}, nil
}

// classifyGolden walks the fixed match-type priority order.
func classifyGolden(golden, candidate string, m similarity.Method, o similarity.Options, semantic, partial float64) (string, float64) {
	if strings.TrimSpace(candidate) == "" {
		return matchError, 0
	}
	if similarity.ExactMatch(golden, candidate, o) == 1 {
		return matchExact, 1
	}
	score := similarity.Score(m, golden, candidate, o)
	if score >= semantic {
		return matchSemantic, score
	}
	if score >= partial {
		return matchPartial, score
	}
	if structurallyEqual(golden, candidate) {
		return matchStructural, score
	}
	return matchNone, score
}

// structurallyEqual reports whether both texts parse as JSON documents with
// the same shape (identical key sets and array lengths), regardless of leaf
// values.
func structurallyEqual(a, b string) bool {
	var va, vb any
	if json.Unmarshal([]byte(a), &va) != nil || json.Unmarshal([]byte(b), &vb) != nil {
		return false
	}
	return sameShape(va, vb)
}

func sameShape(a, b any) bool {
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !sameShape(xv, yv) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !sameShape(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		// Leaves must agree on type only.
		return reflect.TypeOf(a) == reflect.TypeOf(b)
	}
}

func goldenSeverity(matchType string) string {
	switch matchType {
	case matchExact, matchSemantic, matchStructural:
		return "none"
	case matchPartial:
		return "minor"
	case matchNone:
		return "major"
	default:
		return "critical"
	}
}

func sortCategories(cs []categoryBreakdown) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Category < cs[j].Category })
}
