package agents

import (
	"bytes"
	"encoding/json"

	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// decodeStrict parses an agent input document, rejecting unknown keys so the
// decision inputs hash stays stable across callers.
func decodeStrict(input json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eval.Invalid("body", "malformed input: %s", err)
	}
	return nil
}

// clamp01 bounds a score to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
