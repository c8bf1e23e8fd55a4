package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/similarity"
)

// Hallucination types in classifier priority order.
const (
	hallFabrication   = "fabrication"
	hallUnsupported   = "unsupported"
	hallContradiction = "contradiction"
	hallPartial       = "partial_support"
	hallExaggeration  = "exaggeration"
	hallNone          = "none"
)

const (
	fabricationCeiling      = 0.2
	unsupportedCeiling      = 0.4
	defaultSupportThreshold = 0.7
	exaggerationUnmatched   = 0.4
)

// HallucinationAgent classifies claims against reference contexts. A claim's
// support score is its best similarity against any context; the classifier
// walks the type ladder top-to-bottom and stops at the first hit.
type HallucinationAgent struct{}

// NewHallucinationAgent builds the hallucination detector.
func NewHallucinationAgent() *HallucinationAgent { return &HallucinationAgent{} }

func (a *HallucinationAgent) ID() string           { return "hallucination-detector" }
func (a *HallucinationAgent) Version() string      { return "1.0.0" }
func (a *HallucinationAgent) DecisionType() string { return "hallucination_detection" }

type hallucinationInput struct {
	Claims           []string `json:"claims"`
	Contexts         []string `json:"contexts"`
	SimilarityMethod string   `json:"similarity_method,omitempty"`
	SupportThreshold *float64 `json:"support_threshold,omitempty"`
}

type claimResult struct {
	Claim             string  `json:"claim"`
	HallucinationType string  `json:"hallucination_type"`
	SupportScore      float64 `json:"support_score"`
	UnmatchedRatio    float64 `json:"unmatched_ratio"`
	Severity          string  `json:"severity"`
	BestContext       int     `json:"best_context"`
}

func (a *HallucinationAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in hallucinationInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if len(in.Claims) == 0 {
		return nil, eval.Invalid("claims", "at least one claim is required")
	}
	if len(in.Contexts) == 0 {
		return nil, eval.Invalid("contexts", "at least one reference context is required")
	}
	for i, c := range in.Claims {
		if c == "" {
			return nil, eval.Invalid(fmt.Sprintf("claims[%d]", i), "must not be empty")
		}
	}
	method, err := similarity.ParseMethod(in.SimilarityMethod)
	if err != nil {
		return nil, eval.Invalid("similarity_method", "%s", err)
	}
	if method == similarity.MethodLevenshtein && in.SimilarityMethod == "" {
		// Support scoring defaults to n-grams: claims rarely align
		// character-for-character with their evidence.
		method = similarity.MethodNGram
	}
	threshold := defaultSupportThreshold
	if in.SupportThreshold != nil {
		if *in.SupportThreshold <= unsupportedCeiling || *in.SupportThreshold > 1 {
			return nil, eval.Invalid("support_threshold", "must be in (%g,1], got %g", unsupportedCeiling, *in.SupportThreshold)
		}
		threshold = *in.SupportThreshold
	}

	opts := similarity.DefaultOptions()
	results := make([]claimResult, 0, len(in.Claims))
	counts := map[string]int{}
	flagged := 0

	for _, claim := range in.Claims {
		r := classifyClaim(claim, in.Contexts, method, opts, threshold)
		results = append(results, r)
		counts[r.HallucinationType]++
		if r.HallucinationType != hallNone {
			flagged++
		}
	}

	total := len(in.Claims)
	rate := float64(flagged) / float64(total)

	sampleFactor := math.Min(1, math.Log10(float64(total)+1)/2)
	contextFactor := math.Min(1, float64(len(in.Contexts))/3)
	margin := classificationMargin(results, threshold)

	factors := []decision.ConfidenceFactor{
		{Factor: "classification_margin", Weight: 0.4, Value: margin},
		{Factor: "context_coverage", Weight: 0.3, Value: contextFactor},
		{Factor: "sample_size", Weight: 0.3, Value: sampleFactor},
	}
	confidence := clamp01(0.4*margin + 0.3*contextFactor + 0.3*sampleFactor)

	return &Result{
		Outputs: map[string]any{
			"claims":             results,
			"hallucination_rate": rate,
			"type_counts":        counts,
			"total":              total,
			"flagged":            flagged,
			"support_threshold":  threshold,
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"claims":            total,
			"contexts":          len(in.Contexts),
			"similarity_method": string(method),
			"support_threshold": threshold,
		},
		Confidence: confidence,
		Factors:    factors,
	}, nil
}

// classifyClaim scores a claim against every context and walks the type
// ladder. Contradiction is checked as soon as the claim is not an outright
// fabrication: a contradicted claim often overlaps its evidence heavily, so
// the score bands alone would misfile it as partial support.
func classifyClaim(claim string, contexts []string, m similarity.Method, o similarity.Options, threshold float64) claimResult {
	best := 0.0
	bestIdx := 0
	var unmatchedSum float64
	contradicted := false
	for i, ctx := range contexts {
		if score := similarity.Score(m, claim, ctx, o); score > best {
			best = score
			bestIdx = i
		}
		unmatchedSum += unmatchedRatio(claim, ctx, o)
		if contradicts(claim, ctx, o) {
			contradicted = true
		}
	}
	avgUnmatched := unmatchedSum / float64(len(contexts))

	r := claimResult{
		Claim:          claim,
		SupportScore:   best,
		UnmatchedRatio: avgUnmatched,
		BestContext:    bestIdx,
	}
	switch {
	case best < fabricationCeiling:
		r.HallucinationType = hallFabrication
	case contradicted:
		r.HallucinationType = hallContradiction
	case best < unsupportedCeiling:
		r.HallucinationType = hallUnsupported
	case best < threshold:
		r.HallucinationType = hallPartial
	case avgUnmatched > exaggerationUnmatched:
		r.HallucinationType = hallExaggeration
	default:
		r.HallucinationType = hallNone
	}
	r.Severity = hallucinationSeverity(r.HallucinationType)
	return r
}

// contradicts combines the negation-cue heuristic with a same-subject
// conflict check: heavy n-gram overlap where each side also carries a
// keyword the other lacks marks statements about the same thing that
// disagree on a detail.
func contradicts(claim, context string, o similarity.Options) bool {
	if similarity.Contradiction(claim, context, o) {
		return true
	}
	if similarity.NGram(claim, context, o) < 0.5 {
		return false
	}
	onlyClaim, onlyContext := exclusiveKeywords(claim, context, o)
	return onlyClaim > 0 && onlyContext > 0
}

// exclusiveKeywords counts keywords present in exactly one of the two texts.
func exclusiveKeywords(a, b string, o similarity.Options) (onlyA, onlyB int) {
	sa := keywordSetOf(a, o)
	sb := keywordSetOf(b, o)
	for t := range sa {
		if _, ok := sb[t]; !ok {
			onlyA++
		}
	}
	for t := range sb {
		if _, ok := sa[t]; !ok {
			onlyB++
		}
	}
	return onlyA, onlyB
}

func keywordSetOf(s string, o similarity.Options) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range similarity.Tokens(s, o) {
		set[t] = struct{}{}
	}
	return set
}

// unmatchedRatio is the share of claim keywords absent from the context.
func unmatchedRatio(claim, context string, o similarity.Options) float64 {
	ck := keywordSetOf(claim, o)
	if len(ck) == 0 {
		return 0
	}
	xk := keywordSetOf(context, o)
	missing := 0
	for t := range ck {
		if _, ok := xk[t]; !ok {
			missing++
		}
	}
	return float64(missing) / float64(len(ck))
}

func hallucinationSeverity(t string) string {
	switch t {
	case hallFabrication, hallContradiction:
		return "critical"
	case hallUnsupported:
		return "major"
	case hallPartial, hallExaggeration:
		return "minor"
	default:
		return "none"
	}
}

// classificationMargin measures how far support scores sit from the nearest
// band boundary; scores hugging a boundary make the classification shaky.
func classificationMargin(results []claimResult, threshold float64) float64 {
	if len(results) == 0 {
		return 0
	}
	boundaries := []float64{fabricationCeiling, unsupportedCeiling, threshold}
	var sum float64
	for _, r := range results {
		nearest := math.Inf(1)
		for _, b := range boundaries {
			if d := math.Abs(r.SupportScore - b); d < nearest {
				nearest = d
			}
		}
		sum += math.Min(1, nearest/0.2)
	}
	return sum / float64(len(results))
}
