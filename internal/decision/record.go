package decision

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// ConfidenceFactor is one weighted component of a record's confidence score.
type ConfidenceFactor struct {
	Factor string  `json:"factor"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
}

// ExecutionRef ties a record to its runtime context for tracing.
type ExecutionRef struct {
	ExecutionID string `json:"execution_id"`
	TraceID     string `json:"trace_id,omitempty"`
	SpanID      string `json:"span_id,omitempty"`
}

// Record is the durable evidence of one agent decision.
type Record struct {
	AgentID      string `json:"agent_id"`
	AgentVersion string `json:"agent_version"`
	DecisionType string `json:"decision_type"`
	DecisionID   string `json:"decision_id"`

	InputsHash    string         `json:"inputs_hash"`
	InputsSummary map[string]any `json:"inputs_summary,omitempty"`
	Outputs       map[string]any `json:"outputs"`

	Confidence        float64            `json:"confidence"`
	ConfidenceFactors []ConfidenceFactor `json:"confidence_factors,omitempty"`

	ConstraintsApplied []string `json:"constraints_applied,omitempty"`

	ExecutionRef ExecutionRef `json:"execution_ref"`
	Timestamp    string       `json:"timestamp"`
	DurationMs   float64      `json:"duration_ms"`
}

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Builder accumulates a record during agent execution and stamps the
// invariant fields on Build.
type Builder struct {
	rec     Record
	started time.Time
	now     func() time.Time
	err     error
}

// NewBuilder starts a record for one decision. The decision id is a fresh
// UUIDv4 and the duration clock starts now.
func NewBuilder(agentID, agentVersion, decisionType string) *Builder {
	b := &Builder{
		rec: Record{
			AgentID:      agentID,
			AgentVersion: agentVersion,
			DecisionType: decisionType,
			DecisionID:   uuid.NewString(),
			Outputs:      map[string]any{},
		},
		now: time.Now,
	}
	b.started = b.now()
	if !semverRe.MatchString(agentVersion) {
		b.err = fmt.Errorf("decision: agent_version %q is not MAJOR.MINOR.PATCH", agentVersion)
	}
	return b
}

// Inputs hashes the full decision inputs and keeps the given summary. The
// raw inputs never appear on the record, only the hash.
func (b *Builder) Inputs(full any, summary map[string]any) *Builder {
	if b.err != nil {
		return b
	}
	h, err := InputsHash(full)
	if err != nil {
		b.err = err
		return b
	}
	b.rec.InputsHash = h
	b.rec.InputsSummary = summary
	return b
}

// Outputs sets the decision outputs.
func (b *Builder) Outputs(out map[string]any) *Builder {
	b.rec.Outputs = out
	return b
}

// Confidence sets the overall score and its weighted factors. Weights must
// sum to at most 1.
func (b *Builder) Confidence(score float64, factors []ConfidenceFactor) *Builder {
	if b.err != nil {
		return b
	}
	var total float64
	for _, f := range factors {
		if f.Weight < 0 {
			b.err = fmt.Errorf("decision: negative factor weight %q", f.Factor)
			return b
		}
		total += f.Weight
	}
	if total > 1+1e-9 {
		b.err = fmt.Errorf("decision: confidence factor weights sum to %.4f", total)
		return b
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	b.rec.Confidence = score
	b.rec.ConfidenceFactors = factors
	return b
}

// Constraints records the execution constraints that applied.
func (b *Builder) Constraints(cs []string) *Builder {
	b.rec.ConstraintsApplied = cs
	return b
}

// Build finalizes the record: execution ref from the active span, RFC 3339
// UTC timestamp, and measured duration.
func (b *Builder) Build(ctx context.Context, executionID string) (Record, error) {
	if b.err != nil {
		return Record{}, b.err
	}
	if b.rec.InputsHash == "" {
		return Record{}, fmt.Errorf("decision: record has no inputs hash")
	}

	ref := ExecutionRef{ExecutionID: executionID}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ref.TraceID = sc.TraceID().String()
		ref.SpanID = sc.SpanID().String()
	}
	b.rec.ExecutionRef = ref

	done := b.now().UTC()
	b.rec.Timestamp = done.Format(time.RFC3339Nano)
	b.rec.DurationMs = float64(done.Sub(b.started)) / float64(time.Millisecond)
	return b.rec, nil
}
