package agents

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/similarity"
	"github.com/LLM-Dev-Ops/evalbench/internal/stats"
)

const defaultFaithfulnessThreshold = 0.4

// FaithfulnessAgent verifies that a generated text stays grounded in its
// source: the candidate is split into sentences and each sentence's support
// is its best keyword overlap against the source sentences.
type FaithfulnessAgent struct{}

// NewFaithfulnessAgent builds the faithfulness verifier.
func NewFaithfulnessAgent() *FaithfulnessAgent { return &FaithfulnessAgent{} }

func (a *FaithfulnessAgent) ID() string           { return "faithfulness-verification" }
func (a *FaithfulnessAgent) Version() string      { return "1.0.0" }
func (a *FaithfulnessAgent) DecisionType() string { return "faithfulness_verification" }

type faithfulnessInput struct {
	Source           string   `json:"source"`
	Candidate        string   `json:"candidate"`
	SupportThreshold *float64 `json:"support_threshold,omitempty"`
}

type sentenceSupport struct {
	Sentence     string  `json:"sentence"`
	SupportScore float64 `json:"support_score"`
	Supported    bool    `json:"supported"`
}

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+|\n+`)

func (a *FaithfulnessAgent) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in faithfulnessInput
	if err := decodeStrict(input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Source) == "" {
		return nil, eval.Invalid("source", "must not be empty")
	}
	if strings.TrimSpace(in.Candidate) == "" {
		return nil, eval.Invalid("candidate", "must not be empty")
	}
	threshold := defaultFaithfulnessThreshold
	if in.SupportThreshold != nil {
		if *in.SupportThreshold <= 0 || *in.SupportThreshold > 1 {
			return nil, eval.Invalid("support_threshold", "must be in (0,1], got %g", *in.SupportThreshold)
		}
		threshold = *in.SupportThreshold
	}

	opts := similarity.DefaultOptions()
	sourceSentences := splitSentences(in.Source)
	candidateSentences := splitSentences(in.Candidate)

	sentences := make([]sentenceSupport, 0, len(candidateSentences))
	var scores []float64
	supported := 0
	for _, sent := range candidateSentences {
		best := 0.0
		for _, src := range sourceSentences {
			// Keyword overlap tolerates paraphrase better than edit distance.
			if s := similarity.KeywordOverlap(sent, src, opts); s > best {
				best = s
			}
		}
		// Whole-source comparison catches sentences drawing on several
		// source sentences at once.
		if s := similarity.KeywordOverlap(sent, in.Source, opts); s > best {
			best = s
		}
		ok := best >= threshold
		if ok {
			supported++
		}
		sentences = append(sentences, sentenceSupport{Sentence: sent, SupportScore: best, Supported: ok})
		scores = append(scores, best)
	}

	faithfulness := stats.Mean(scores)
	supportRate := float64(supported) / float64(len(sentences))

	sentenceFactor := math.Min(1, float64(len(sentences))/5)
	sourceFactor := math.Min(1, float64(len(sourceSentences))/5)
	margin := 0.0
	for _, s := range scores {
		margin += math.Abs(s - threshold)
	}
	margin = clamp01(margin / float64(len(scores)) / math.Max(threshold, 1-threshold))

	factors := []decision.ConfidenceFactor{
		{Factor: "support_margin", Weight: 0.4, Value: margin},
		{Factor: "candidate_coverage", Weight: 0.3, Value: sentenceFactor},
		{Factor: "source_coverage", Weight: 0.3, Value: sourceFactor},
	}
	confidence := clamp01(0.4*margin + 0.3*sentenceFactor + 0.3*sourceFactor)

	return &Result{
		Outputs: map[string]any{
			"sentences":          sentences,
			"faithfulness_score": faithfulness,
			"support_rate":       supportRate,
			"is_faithful":        supported == len(sentences),
			"threshold":          threshold,
		},
		InputsFull: in,
		InputsSummary: map[string]any{
			"source_sentences":    len(sourceSentences),
			"candidate_sentences": len(candidateSentences),
			"support_threshold":   threshold,
		},
		Confidence: confidence,
		Factors:    factors,
	}, nil
}

// splitSentences breaks text on terminal punctuation and newlines, dropping
// empty fragments.
func splitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, strings.TrimSpace(text))
	}
	return out
}
