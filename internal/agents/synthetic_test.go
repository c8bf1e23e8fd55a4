package agents

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

func syntheticTests(t *testing.T, input string) ([]eval.TestCase, *Result) {
	t.Helper()
	a := NewSyntheticAgent()
	res, err := a.Execute(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	cases, ok := res.Outputs["tests"].([]eval.TestCase)
	if !ok {
		t.Fatalf("tests output missing: %v", res.Outputs["tests"])
	}
	return cases, res
}

func TestSyntheticCombinatorialExpansion(t *testing.T) {
	cases, res := syntheticTests(t, `{
		"templates": [{"template_id": "tr", "template": "Translate {word} to {lang}"}],
		"placeholders": {
			"word": ["cat", "dog"],
			"lang": ["French", "German"]
		}
	}`)
	if len(cases) != 4 {
		t.Fatalf("cross product: got %d cases", len(cases))
	}
	// Placeholders expand in sorted name order: lang before word.
	wantPrompts := []string{
		"Translate cat to French",
		"Translate dog to French",
		"Translate cat to German",
		"Translate dog to German",
	}
	var got []string
	for _, c := range cases {
		got = append(got, c.Prompt)
	}
	if !reflect.DeepEqual(got, wantPrompts) {
		t.Fatalf("prompts:\n got %v\nwant %v", got, wantPrompts)
	}
	if cases[0].TestID != "tr-0" || cases[3].TestID != "tr-3" {
		t.Fatalf("test ids: %q %q", cases[0].TestID, cases[3].TestID)
	}
	if res.Outputs["truncated"] != false {
		t.Fatal("small expansion must not truncate")
	}
}

func TestSyntheticRandomIsSeeded(t *testing.T) {
	input := `{
		"templates": [{"template": "Summarize {topic} in {style} style"}],
		"placeholders": {
			"topic": ["rivers", "volcanoes", "glaciers"],
			"style": ["formal", "casual"]
		},
		"strategy": "random",
		"count": 5,
		"seed": 42
	}`
	first, _ := syntheticTests(t, input)
	second, _ := syntheticTests(t, input)
	if len(first) != 5 {
		t.Fatalf("count: got %d", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("same seed must reproduce the same cases")
	}
}

func TestSyntheticTruncatesAtCap(t *testing.T) {
	in := syntheticInput{
		Placeholders: map[string][]string{},
		Strategy:     strategyRandom,
		Count:        maxSyntheticCases + 50,
	}
	in.Templates = append(in.Templates, struct {
		TemplateID string `json:"template_id,omitempty"`
		Template   string `json:"template"`
	}{Template: "static prompt"})
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	a := NewSyntheticAgent()
	res, err := a.Execute(context.Background(), json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	cases := res.Outputs["tests"].([]eval.TestCase)
	if len(cases) != maxSyntheticCases {
		t.Fatalf("cap: got %d cases", len(cases))
	}
	if res.Outputs["truncated"] != true {
		t.Fatal("truncation flag should be set")
	}
	found := false
	for _, c := range res.Constraints {
		if c == string(eval.ConstraintMaxSamplesExceeded) {
			found = true
		}
	}
	if !found {
		t.Fatalf("constraints: %v", res.Constraints)
	}
}

func TestSyntheticValidation(t *testing.T) {
	a := NewSyntheticAgent()
	cases := []struct {
		name  string
		input string
	}{
		{"no templates", `{"templates": [], "placeholders": {}}`},
		{"empty template", `{"templates": [{"template": "  "}], "placeholders": {}}`},
		{"unknown strategy", `{"templates": [{"template": "t"}], "placeholders": {}, "strategy": "exhaustive"}`},
		{"random without count", `{"templates": [{"template": "t"}], "placeholders": {}, "strategy": "random"}`},
		{"empty placeholder values", `{"templates": [{"template": "{a}"}], "placeholders": {"a": []}}`},
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
