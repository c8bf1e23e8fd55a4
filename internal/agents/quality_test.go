package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/similarity"
)

func TestQualityScoresRelevantResponse(t *testing.T) {
	a := NewQualityAgent()
	res, err := a.Execute(context.Background(), json.RawMessage(`{
		"responses": [{
			"response_id": "r1",
			"prompt": "Explain how photosynthesis converts sunlight into chemical energy",
			"output": "Photosynthesis converts sunlight into chemical energy inside chloroplasts. Light reactions capture photons and produce carriers. The Calvin cycle then fixes carbon dioxide into sugars using that stored energy."
		}]
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	scores := res.Outputs["scores"].([]qualityScore)
	if len(scores) != 1 {
		t.Fatalf("scores: %v", scores)
	}
	s := scores[0]
	if s.ResponseID != "r1" {
		t.Fatalf("id: %q", s.ResponseID)
	}
	for _, criterion := range []string{"relevance", "completeness", "coherence", "diversity"} {
		v, ok := s.Criteria[criterion]
		if !ok || v < 0 || v > 1 {
			t.Fatalf("criterion %s: %g %v", criterion, v, ok)
		}
	}
	if !s.Passed {
		t.Fatalf("well-formed on-topic response should pass: %+v", s)
	}
}

func TestQualityPenalizesEmptyishOutput(t *testing.T) {
	a := NewQualityAgent()
	res, err := a.Execute(context.Background(), json.RawMessage(`{
		"responses": [{
			"prompt": "Explain how photosynthesis converts sunlight into chemical energy",
			"output": "ok"
		}],
		"min_length": 100
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	s := res.Outputs["scores"].([]qualityScore)[0]
	if s.Passed {
		t.Fatalf("two-character output should fail: %+v", s)
	}
	if s.Criteria["completeness"] > 0.1 {
		t.Fatalf("completeness for truncated output: %g", s.Criteria["completeness"])
	}
}

func TestCompletenessScoreBands(t *testing.T) {
	if got := completenessScore("", 0, 200); got != 0 {
		t.Fatalf("empty: %g", got)
	}
	if got := completenessScore("short", 100, 200); got >= 0.5 {
		t.Fatalf("below minimum should halve: %g", got)
	}
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	if got := completenessScore(string(long), 0, 200); got != 1 {
		t.Fatalf("at target: %g", got)
	}
}

func TestDiversityScore(t *testing.T) {
	opts := similarity.DefaultOptions()
	if got := diversityScore("unique words only here", opts); got != 1 {
		t.Fatalf("all-unique: %g", got)
	}
	if got := diversityScore("same same same same", opts); got != 0.25 {
		t.Fatalf("repeated token: %g", got)
	}
}

func TestQualityValidation(t *testing.T) {
	a := NewQualityAgent()
	cases := []struct {
		name  string
		input string
	}{
		{"no responses", `{"responses": []}`},
		{"empty prompt", `{"responses": [{"prompt": "", "output": "o"}]}`},
		{"unknown criterion", `{"responses": [{"prompt": "p", "output": "o"}], "weights": {"accuracy": 1.0}}`},
		{"weights sum", `{"responses": [{"prompt": "p", "output": "o"}], "weights": {"relevance": 0.5}}`},
		{"bad pass score", `{"responses": [{"prompt": "p", "output": "o"}], "pass_score": 2}`},
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
